package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertBatchSize bounds how many rows go into a single INSERT during
// Syncer.SyncNow's import of radioid.net's ~150k-row export.
const upsertBatchSize = 1000

// upsertColumns are the columns refreshed when an incoming row collides
// with an existing radio_id; everything except the primary key.
var upsertColumns = []string{
	"callsign", "first_name", "last_name", "city", "state", "country", "updated_at",
}

// DMRUserRepository is the GORM-backed store of DMRUser rows, queried
// by lookup.DMRDatabaseAdapter and written by internal/radioid.Syncer.
type DMRUserRepository struct {
	db *gorm.DB
}

// NewDMRUserRepository wraps an already-opened *gorm.DB (see
// database.NewDB).
func NewDMRUserRepository(db *gorm.DB) *DMRUserRepository {
	return &DMRUserRepository{db: db}
}

// GetByRadioID looks up the user with the given DMR ID.
func (r *DMRUserRepository) GetByRadioID(radioID uint32) (*DMRUser, error) {
	var user DMRUser
	if err := r.db.Where("radio_id = ?", radioID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByCallsign looks up the user with the given callsign (exact,
// case-sensitive match; callers normalize case before calling this).
func (r *DMRUserRepository) GetByCallsign(callsign string) (*DMRUser, error) {
	var user DMRUser
	if err := r.db.Where("callsign = ?", callsign).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertBatch sanitizes and validates users, then bulk-inserts them in
// chunks of upsertBatchSize rows with ON CONFLICT(radio_id) DO UPDATE,
// so each chunk is one INSERT statement instead of a row-by-row save
// loop. Rows failing validation are skipped rather than aborting the
// whole import; radioid.net's export routinely carries a handful of
// malformed entries.
func (r *DMRUserRepository) UpsertBatch(users []DMRUser) error {
	if len(users) == 0 {
		return nil
	}

	now := time.Now()
	valid := make([]DMRUser, 0, len(users))
	for _, user := range users {
		user.SanitizeFields()
		if user.IsValid() {
			user.UpdatedAt = now
			valid = append(valid, user)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "radio_id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).CreateInBatches(valid, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("batch upsert of %d users: %w", len(valid), err)
	}
	return nil
}

// Count returns the total number of rows in the table.
func (r *DMRUserRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&DMRUser{}).Count(&count).Error
	return count, err
}

// GetRecentlyUpdated returns up to limit rows updated after since,
// newest first.
func (r *DMRUserRepository) GetRecentlyUpdated(since time.Time, limit int) ([]DMRUser, error) {
	var users []DMRUser
	err := r.db.Where("updated_at > ?", since).
		Order("updated_at DESC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// FindByCallsignPattern returns up to limit rows whose callsign begins
// with pattern (an empty pattern matches everything), ordered
// alphabetically.
func (r *DMRUserRepository) FindByCallsignPattern(pattern string, limit int) ([]DMRUser, error) {
	var users []DMRUser
	err := r.db.Where("callsign LIKE ?", pattern+"%").
		Order("callsign ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// GetStatistics reports the row count, most recent update time, and the
// top 10 countries by subscriber count.
func (r *DMRUserRepository) GetStatistics() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	count, err := r.Count()
	if err != nil {
		return nil, err
	}
	stats["total_users"] = count

	var latest DMRUser
	err = r.db.Order("updated_at DESC").First(&latest).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if err != gorm.ErrRecordNotFound {
		stats["last_updated"] = latest.UpdatedAt
	}

	var countryCounts []struct {
		Country string `json:"country"`
		Count   int    `json:"count"`
	}
	err = r.db.Model(&DMRUser{}).
		Select("country, COUNT(*) as count").
		Where("country != ''").
		Group("country").
		Order("count DESC").
		Limit(10).
		Find(&countryCounts).Error
	if err != nil {
		return nil, err
	}
	stats["top_countries"] = countryCounts

	return stats, nil
}

// HealthCheck runs a trivial query to confirm the connection still works.
func (r *DMRUserRepository) HealthCheck() error {
	var count int64
	return r.db.Model(&DMRUser{}).Count(&count).Error
}
