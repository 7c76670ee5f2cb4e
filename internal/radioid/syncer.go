// Package radioid keeps the local DMR subscriber database (internal/database)
// current by periodically downloading and importing radioid.net's public
// user export on the configured interval (database.syncHours).
package radioid

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dbehnke/dvmtranscode/internal/database"
)

const (
	// UserCSVURL is radioid.net's full subscriber export.
	UserCSVURL = "https://radioid.net/static/user.csv"

	// DefaultSyncInterval is how often Start re-downloads the export.
	DefaultSyncInterval = 24 * time.Hour

	// DefaultHTTPTimeout bounds a single download attempt.
	DefaultHTTPTimeout = 30 * time.Second

	maxDownloadAttempts = 3
	retryDelay          = 5 * time.Second

	csvFieldCount = 7
)

// Syncer downloads radioid.net's CSV export and upserts it into the
// local subscriber table on a fixed interval.
type Syncer struct {
	repository *database.DMRUserRepository
	log        *zap.Logger
	interval   time.Duration
	client     *http.Client
}

// SyncerConfig overrides Syncer's defaults.
type SyncerConfig struct {
	SyncInterval time.Duration
	HTTPTimeout  time.Duration
}

// NewSyncer builds a Syncer with the default 24h interval.
func NewSyncer(repository *database.DMRUserRepository, log *zap.Logger) *Syncer {
	return NewSyncerWithConfig(repository, log, SyncerConfig{
		SyncInterval: DefaultSyncInterval,
		HTTPTimeout:  DefaultHTTPTimeout,
	})
}

// NewSyncerWithConfig builds a Syncer with a custom interval/timeout.
func NewSyncerWithConfig(repository *database.DMRUserRepository, log *zap.Logger, cfg SyncerConfig) *Syncer {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	return &Syncer{
		repository: repository,
		log:        log,
		interval:   cfg.SyncInterval,
		client:     &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Start runs an immediate sync, then repeats on the configured interval
// until ctx is canceled.
func (s *Syncer) Start(ctx context.Context) {
	s.logf("starting, interval %v", s.interval)

	if err := s.SyncNow(ctx); err != nil {
		s.logf("initial sync failed: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logf("stopping")
			return
		case <-ticker.C:
			if err := s.SyncNow(ctx); err != nil {
				s.logf("sync failed: %v", err)
			}
		}
	}
}

// SyncNow downloads and imports the CSV export once, retrying transient
// download failures up to maxDownloadAttempts times.
func (s *Syncer) SyncNow(ctx context.Context) error {
	start := time.Now()
	s.logf("downloading %s", UserCSVURL)

	var body io.ReadCloser
	var err error
	for attempt := 1; attempt <= maxDownloadAttempts; attempt++ {
		body, err = s.download(ctx)
		if err == nil {
			break
		}
		s.logf("download attempt %d/%d failed: %v", attempt, maxDownloadAttempts, err)
		if attempt == maxDownloadAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	if err != nil {
		return fmt.Errorf("download after %d attempts: %w", maxDownloadAttempts, err)
	}
	defer body.Close()

	users, err := s.parse(body)
	if err != nil {
		return fmt.Errorf("parse user export: %w", err)
	}
	if len(users) == 0 {
		return fmt.Errorf("user export contained no valid rows")
	}

	if err := s.repository.UpsertBatch(users); err != nil {
		return fmt.Errorf("import users: %w", err)
	}

	s.logf("sync complete: %d users imported in %v", len(users), time.Since(start))
	return nil
}

func (s *Syncer) download(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, UserCSVURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "dvmtranscode/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}

// parse reads the radioid.net export format (RADIO_ID,CALLSIGN,
// FIRST_NAME,LAST_NAME,CITY,STATE,COUNTRY), skipping the header row and
// any row that fails validation.
func (s *Syncer) parse(r io.Reader) ([]database.DMRUser, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	users := make([]database.DMRUser, 0, 100000)

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}
		line++
		if line == 1 {
			continue // header
		}

		user, err := parseRow(record)
		if err != nil {
			s.logf("skipping line %d: %v", line, err)
			continue
		}
		users = append(users, *user)

		if line%10000 == 0 {
			s.logf("processed %d lines, %d valid users", line, len(users))
		}
	}
	return users, nil
}

func parseRow(record []string) (*database.DMRUser, error) {
	if len(record) < csvFieldCount {
		return nil, fmt.Errorf("expected %d fields, got %d", csvFieldCount, len(record))
	}

	idStr := strings.TrimSpace(record[0])
	radioID, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid radio ID %q: %w", idStr, err)
	}
	if radioID == 0 {
		return nil, fmt.Errorf("radio ID cannot be zero")
	}

	callsign := strings.TrimSpace(record[1])
	if callsign == "" {
		return nil, fmt.Errorf("empty callsign")
	}

	user := &database.DMRUser{
		RadioID:   uint32(radioID),
		Callsign:  strings.ToUpper(callsign),
		FirstName: strings.TrimSpace(record[2]),
		LastName:  strings.TrimSpace(record[3]),
		City:      strings.TrimSpace(record[4]),
		State:     strings.TrimSpace(record[5]),
		Country:   strings.TrimSpace(record[6]),
		UpdatedAt: time.Now(),
	}
	if !user.IsValid() {
		return nil, fmt.Errorf("failed record validation")
	}
	return user, nil
}

// LastSyncTime returns the most recent UpdatedAt across the table, or
// the zero time if nothing has synced yet.
func (s *Syncer) LastSyncTime() (time.Time, error) {
	users, err := s.repository.GetRecentlyUpdated(time.Unix(0, 0), 1)
	if err != nil {
		return time.Time{}, err
	}
	if len(users) == 0 {
		return time.Time{}, nil
	}
	return users[0].UpdatedAt, nil
}

// Statistics merges the repository's table statistics with the
// syncer's own schedule information.
func (s *Syncer) Statistics() (map[string]interface{}, error) {
	stats, err := s.repository.GetStatistics()
	if err != nil {
		return nil, err
	}
	lastSync, _ := s.LastSyncTime()
	stats["last_sync"] = lastSync
	stats["sync_interval"] = s.interval.String()
	stats["next_sync"] = time.Now().Add(s.interval)
	return stats, nil
}

func (s *Syncer) logf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Sugar().Infof("radioid syncer: "+format, args...)
	}
}
