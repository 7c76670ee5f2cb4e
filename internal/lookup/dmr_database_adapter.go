package lookup

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dbehnke/dvmtranscode/internal/database"
)

// DMRDatabaseAdapter is a host.Lookup backend over the SQLite-backed
// DMR user table (internal/database), synced from radioid.net by
// internal/radioid.Syncer. It answers the same FindCS/FindID/Exists
// queries as FileLookup but against a live database instead of a flat
// file, with a small in-memory LRU-ish cache in front of the common
// queries since the call/slot machines ask FindCS once per call.
type DMRDatabaseAdapter struct {
	repository *database.DMRUserRepository
	log        *zap.Logger

	mu         sync.RWMutex
	lookups    uint32
	hits       uint32
	misses     uint32
	errs       uint32
	lastAccess time.Time

	cacheEnabled  bool
	cacheSize     int
	cacheExpiry   time.Duration
	idCache       map[uint32]string
	callsignCache map[string]uint32
	cacheFilledAt time.Time
}

// DMRDatabaseAdapterConfig configures the optional lookup cache.
type DMRDatabaseAdapterConfig struct {
	EnableCache bool
	CacheSize   int
	CacheExpiry time.Duration
}

// NewDMRDatabaseAdapter builds an adapter with a 1000-entry, 5-minute cache.
func NewDMRDatabaseAdapter(repository *database.DMRUserRepository) *DMRDatabaseAdapter {
	return NewDMRDatabaseAdapterWithConfig(repository, DMRDatabaseAdapterConfig{
		EnableCache: true,
		CacheSize:   1000,
		CacheExpiry: 5 * time.Minute,
	})
}

// NewDMRDatabaseAdapterWithConfig builds an adapter with a custom cache
// policy.
func NewDMRDatabaseAdapterWithConfig(repository *database.DMRUserRepository, cfg DMRDatabaseAdapterConfig) *DMRDatabaseAdapter {
	a := &DMRDatabaseAdapter{
		repository:    repository,
		cacheEnabled:  cfg.EnableCache,
		cacheSize:     cfg.CacheSize,
		cacheExpiry:   cfg.CacheExpiry,
		cacheFilledAt: time.Now(),
	}
	if a.cacheEnabled {
		a.idCache = make(map[uint32]string)
		a.callsignCache = make(map[string]uint32)
	}
	return a
}

// SetLogger attaches a structured logger for cache/query diagnostics;
// nil disables logging.
func (d *DMRDatabaseAdapter) SetLogger(log *zap.Logger) { d.log = log }

// FindCS resolves id to its callsign, falling back to the numeric ID
// formatted as a string when not found in the database. ID 0xFFFFFF
// always resolves to "ALL", matching FileLookup.FindCS.
func (d *DMRDatabaseAdapter) FindCS(id uint32) string {
	d.touch()

	if id == allCallDmrID {
		return "ALL"
	}

	if d.cacheEnabled {
		if cs, ok := d.cachedCallsign(id); ok {
			d.hit()
			return cs
		}
	}

	user, err := d.repository.GetByRadioID(id)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			d.fail()
			d.debugf("lookup failed for ID %d: %v", id, err)
		} else {
			d.miss()
		}
		return strconv.FormatUint(uint64(id), 10)
	}

	if d.cacheEnabled {
		d.cacheCallsign(id, user.Callsign)
	}
	d.hit()
	return user.Callsign
}

// FindID resolves callsign (case-insensitive) to its DMR ID, or 0 if
// unknown.
func (d *DMRDatabaseAdapter) FindID(callsign string) uint32 {
	d.touch()

	upper := strings.ToUpper(strings.TrimSpace(callsign))
	if upper == "" {
		return unknownDmrID
	}

	if d.cacheEnabled {
		if id, ok := d.cachedID(upper); ok {
			d.hit()
			return id
		}
	}

	user, err := d.repository.GetByCallsign(upper)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			d.fail()
			d.debugf("lookup failed for callsign %s: %v", upper, err)
		} else {
			d.miss()
		}
		return unknownDmrID
	}

	if d.cacheEnabled {
		d.cacheID(upper, user.RadioID)
	}
	d.hit()
	return user.RadioID
}

// Exists reports whether id resolves to a known callsign.
func (d *DMRDatabaseAdapter) Exists(id uint32) bool {
	if id == allCallDmrID {
		return true
	}
	cs := d.FindCS(id)
	return cs != strconv.FormatUint(uint64(id), 10)
}

// GetStats reports lookup counters; reloadCount has no meaning for a
// database that syncs continuously, so it is always 0.
func (d *DMRDatabaseAdapter) GetStats() (totalEntries, reloadCount, errorCount uint32, lastAccess time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	count, err := d.repository.Count()
	if err != nil {
		d.debugf("count query failed: %v", err)
		count = 0
	}
	return uint32(count), 0, d.errs, d.lastAccess
}

// GetEntryCount returns the current row count of the DMR user table.
func (d *DMRDatabaseAdapter) GetEntryCount() uint32 {
	count, err := d.repository.Count()
	if err != nil {
		d.debugf("count query failed: %v", err)
		return 0
	}
	return uint32(count)
}

// ForceReload drops the in-memory cache so the next lookups hit the
// database directly; the table itself is kept current by radioid.Syncer,
// not by this call.
func (d *DMRDatabaseAdapter) ForceReload() error {
	if d.cacheEnabled {
		d.clearCache()
	}
	return nil
}

// Start checks that the database is reachable.
func (d *DMRDatabaseAdapter) Start() error {
	if err := d.repository.HealthCheck(); err != nil {
		return fmt.Errorf("database connection check failed: %w", err)
	}
	count, err := d.repository.Count()
	if err != nil {
		return fmt.Errorf("initial database count: %w", err)
	}
	d.debugf("database lookup ready, %d entries", count)
	return nil
}

// Stop clears the cache; there is no background goroutine to halt since
// radioid.Syncer owns its own lifecycle.
func (d *DMRDatabaseAdapter) Stop() {
	if d.cacheEnabled {
		d.clearCache()
	}
}

// IsRunning always reports true: the database connection has no
// "stopped" state distinct from Start failing outright.
func (d *DMRDatabaseAdapter) IsRunning() bool { return true }

// GetAllCallsigns returns up to 10000 callsigns from the table; for
// debugging and tests, not the per-call hot path.
func (d *DMRDatabaseAdapter) GetAllCallsigns() []string {
	const maxResults = 10000
	users, err := d.repository.FindByCallsignPattern("", maxResults)
	if err != nil {
		d.debugf("callsign scan failed: %v", err)
		return []string{}
	}
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Callsign
	}
	return out
}

// GetAllIDs returns up to 10000 DMR IDs from the table; for debugging
// and tests, not the per-call hot path.
func (d *DMRDatabaseAdapter) GetAllIDs() []uint32 {
	const maxResults = 10000
	users, err := d.repository.FindByCallsignPattern("", maxResults)
	if err != nil {
		d.debugf("ID scan failed: %v", err)
		return []uint32{}
	}
	out := make([]uint32, len(users))
	for i, u := range users {
		out[i] = u.RadioID
	}
	return out
}

// GetUserInfo returns the full subscriber record for id, when the
// adapter's caller needs more than a callsign.
func (d *DMRDatabaseAdapter) GetUserInfo(id uint32) (*database.DMRUser, error) {
	return d.repository.GetByRadioID(id)
}

// GetUserInfoByCallsign returns the full subscriber record for callsign.
func (d *DMRDatabaseAdapter) GetUserInfoByCallsign(callsign string) (*database.DMRUser, error) {
	return d.repository.GetByCallsign(strings.ToUpper(strings.TrimSpace(callsign)))
}

// GetDatabaseStatistics merges the repository's table statistics with
// this adapter's own lookup/cache counters.
func (d *DMRDatabaseAdapter) GetDatabaseStatistics() (map[string]interface{}, error) {
	dbStats, err := d.repository.GetStatistics()
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	out := map[string]interface{}{
		"lookup_count":  d.lookups,
		"hit_count":     d.hits,
		"miss_count":    d.misses,
		"error_count":   d.errs,
		"last_access":   d.lastAccess,
		"cache_enabled": d.cacheEnabled,
	}
	if d.cacheEnabled {
		out["cache_size"] = len(d.idCache) + len(d.callsignCache)
		out["cache_expiry"] = d.cacheExpiry.String()
	}
	d.mu.RUnlock()

	for k, v := range dbStats {
		out[k] = v
	}
	return out, nil
}

func (d *DMRDatabaseAdapter) cachedCallsign(id uint32) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cs, ok := d.idCache[id]
	return cs, ok
}

func (d *DMRDatabaseAdapter) cachedID(callsign string) (uint32, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.callsignCache[callsign]
	return id, ok
}

func (d *DMRDatabaseAdapter) cacheCallsign(id uint32, callsign string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireCacheLocked()
	if len(d.idCache) >= d.cacheSize {
		d.evictHalfLocked()
	}
	d.idCache[id] = callsign
}

func (d *DMRDatabaseAdapter) cacheID(callsign string, id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireCacheLocked()
	if len(d.callsignCache) >= d.cacheSize {
		d.evictHalfLocked()
	}
	d.callsignCache[callsign] = id
}

func (d *DMRDatabaseAdapter) clearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idCache = make(map[uint32]string)
	d.callsignCache = make(map[string]uint32)
	d.cacheFilledAt = time.Now()
}

func (d *DMRDatabaseAdapter) expireCacheLocked() {
	if time.Since(d.cacheFilledAt) > d.cacheExpiry {
		d.idCache = make(map[uint32]string)
		d.callsignCache = make(map[string]uint32)
		d.cacheFilledAt = time.Now()
	}
}

// evictHalfLocked clears half of each cache map; a full LRU isn't worth
// the bookkeeping at this cache's size.
func (d *DMRDatabaseAdapter) evictHalfLocked() {
	for id := range d.idCache {
		delete(d.idCache, id)
		if len(d.idCache) <= d.cacheSize/2 {
			break
		}
	}
	for cs := range d.callsignCache {
		delete(d.callsignCache, cs)
		if len(d.callsignCache) <= d.cacheSize/2 {
			break
		}
	}
}

func (d *DMRDatabaseAdapter) touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	d.lastAccess = time.Now()
}

func (d *DMRDatabaseAdapter) hit() {
	d.mu.Lock()
	d.hits++
	d.mu.Unlock()
}

func (d *DMRDatabaseAdapter) miss() {
	d.mu.Lock()
	d.misses++
	d.mu.Unlock()
}

func (d *DMRDatabaseAdapter) fail() {
	d.mu.Lock()
	d.errs++
	d.mu.Unlock()
}

func (d *DMRDatabaseAdapter) debugf(format string, args ...interface{}) {
	if d.log != nil {
		d.log.Sugar().Debugf("dmr database adapter: "+format, args...)
	}
}
