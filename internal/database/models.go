package database

import (
	"fmt"
	"strings"
	"time"
)

// DMRUser is one radioid.net subscriber record: a DMR ID mapped to a
// callsign plus the registration details radioid.net publishes
// alongside it. internal/radioid.Syncer keeps the table populated;
// lookup.DMRDatabaseAdapter is the only reader the transcoder itself
// uses (DMRDatabaseAdapter.FindCS/FindID), the rest of this surface
// exists for operational tooling (GetUserInfo and friends).
type DMRUser struct {
	RadioID   uint32    `gorm:"primarykey;not null" json:"radio_id"`
	Callsign  string    `gorm:"index;size:20" json:"callsign"`
	FirstName string    `gorm:"size:50" json:"first_name"`
	LastName  string    `gorm:"size:50" json:"last_name"`
	City      string    `gorm:"size:50" json:"city"`
	State     string    `gorm:"size:50" json:"state"`
	Country   string    `gorm:"size:50" json:"country"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the GORM table name regardless of struct renames.
func (DMRUser) TableName() string { return "dmr_users" }

// FullName joins the first/last name fields, skipping any that are empty.
func (u DMRUser) FullName() string {
	var parts []string
	if u.FirstName != "" {
		parts = append(parts, u.FirstName)
	}
	if u.LastName != "" {
		parts = append(parts, u.LastName)
	}
	return strings.Join(parts, " ")
}

// Location joins city/state/country, skipping any that are empty.
func (u DMRUser) Location() string {
	var parts []string
	if u.City != "" {
		parts = append(parts, u.City)
	}
	if u.State != "" {
		parts = append(parts, u.State)
	}
	if u.Country != "" {
		parts = append(parts, u.Country)
	}
	return strings.Join(parts, ", ")
}

// String renders "CALLSIGN (ID) - Full Name [Location]", omitting
// whichever pieces are empty.
func (u DMRUser) String() string {
	result := fmt.Sprintf("%s (%d)", u.Callsign, u.RadioID)
	if name := u.FullName(); name != "" {
		result += fmt.Sprintf(" - %s", name)
	}
	if loc := u.Location(); loc != "" {
		result += fmt.Sprintf(" [%s]", loc)
	}
	return result
}

// IsValid reports whether the record has the minimum fields a DMR ID
// lookup needs.
func (u DMRUser) IsValid() bool {
	return u.RadioID > 0 && u.Callsign != ""
}

// SanitizeCallsign upper-cases and trims the callsign in place.
func (u *DMRUser) SanitizeCallsign() {
	u.Callsign = strings.ToUpper(strings.TrimSpace(u.Callsign))
}

// SanitizeFields trims every free-text field and normalizes the
// callsign, ahead of an insert/update.
func (u *DMRUser) SanitizeFields() {
	u.SanitizeCallsign()
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	u.City = strings.TrimSpace(u.City)
	u.State = strings.TrimSpace(u.State)
	u.Country = strings.TrimSpace(u.Country)
}
