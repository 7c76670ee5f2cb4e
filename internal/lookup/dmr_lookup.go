// Package lookup resolves DMR subscriber IDs to callsigns for log
// enrichment in DmrSlot/P25Call end-of-call lines.
// FileLookup is the flat-file backend (dmrIdLookup.file in config.go);
// DMRDatabaseAdapter (dmr_database_adapter.go) is the SQLite-backed
// alternative synced from radioid.net.
package lookup

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Special DMR ID sentinels:
// ID 16777215 always resolves to the literal string "ALL", and 0 never
// resolves to anything.
const (
	allCallDmrID   = 0xFFFFFF
	unknownDmrID   = 0
	maxCallsignLen = 20
)

// FileLookup is a DMR ID -> callsign table loaded from a flat text file
// ("<id> <callsign>" per line, '#' comments, blank lines ignored) and
// optionally refreshed on an hourly-granularity background timer.
type FileLookup struct {
	filename   string
	reloadTime uint32 // hours between background reloads; 0 disables reload

	mu           sync.RWMutex
	idToCallsign map[uint32]string
	callsignToID map[string]uint32
	totalEntries uint32

	lastReload  time.Time
	reloadCount uint32
	errorCount  uint32

	stop    chan struct{}
	running bool
	stopped bool

	debug bool
}

// NewDMRLookup constructs a FileLookup for filename, reloaded every
// reloadTime hours (0 = load once and never refresh).
func NewDMRLookup(filename string, reloadTime uint32) *FileLookup {
	return &FileLookup{
		filename:     filename,
		reloadTime:   reloadTime,
		idToCallsign: make(map[uint32]string),
		callsignToID: make(map[string]uint32),
		stop:         make(chan struct{}, 1),
	}
}

// SetDebug enables or disables verbose logging of reload activity.
func (f *FileLookup) SetDebug(enabled bool) { f.debug = enabled }

// Start performs the initial load and, if reloadTime > 0, launches the
// background refresh goroutine.
func (f *FileLookup) Start() error {
	if err := f.Read(); err != nil {
		return fmt.Errorf("initial DMR ID table load: %w", err)
	}

	if f.reloadTime == 0 {
		f.debugf("background reload disabled (reloadTime = 0)")
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running || f.stopped {
		return nil
	}
	f.running = true
	go f.reloadLoop()
	f.debugf("background reload started, interval %dh", f.reloadTime)
	return nil
}

// Stop halts the background reload goroutine, blocking until it exits.
func (f *FileLookup) Stop() {
	f.mu.Lock()
	if !f.running || f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	f.mu.Unlock()

	select {
	case f.stop <- struct{}{}:
	case <-time.After(5 * time.Second):
		log.Printf("lookup: timed out signaling reload loop to stop")
	}

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

// IsRunning reports whether the background reload goroutine is active.
func (f *FileLookup) IsRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

func (f *FileLookup) reloadLoop() {
	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	ticker := time.NewTicker(time.Duration(f.reloadTime) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			if err := f.Read(); err != nil {
				log.Printf("lookup: scheduled reload failed: %v", err)
				f.mu.Lock()
				f.errorCount++
				f.mu.Unlock()
			}
		}
	}
}

// ForceReload triggers an immediate reload outside the background
// schedule.
func (f *FileLookup) ForceReload() error {
	f.debugf("manual reload requested")
	return f.Read()
}

// Read parses filename and atomically replaces the lookup tables. On
// parse error the existing tables are left untouched.
func (f *FileLookup) Read() error {
	f.debugf("loading DMR ID table from %s", f.filename)

	file, err := os.Open(f.filename)
	if err != nil {
		f.mu.Lock()
		f.errorCount++
		f.mu.Unlock()
		return fmt.Errorf("open %s: %w", f.filename, err)
	}
	defer file.Close()

	idToCallsign := make(map[uint32]string)
	callsignToID := make(map[string]uint32)
	loaded := 0

	scanner := bufio.NewScanner(file)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			f.debugf("skipping malformed line %d: %q", lineNo, line)
			continue
		}

		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			f.debugf("skipping line %d, bad DMR ID %q", lineNo, fields[0])
			continue
		}

		callsign := strings.ToUpper(fields[1])
		if callsign == "" || len(callsign) > maxCallsignLen {
			f.debugf("skipping line %d, bad callsign %q", lineNo, callsign)
			continue
		}

		idToCallsign[uint32(id)] = callsign
		callsignToID[callsign] = uint32(id)
		loaded++
	}
	if err := scanner.Err(); err != nil {
		f.mu.Lock()
		f.errorCount++
		f.mu.Unlock()
		return fmt.Errorf("scan %s: %w", f.filename, err)
	}

	f.mu.Lock()
	f.idToCallsign = idToCallsign
	f.callsignToID = callsignToID
	f.totalEntries = uint32(loaded)
	f.lastReload = time.Now()
	f.reloadCount++
	f.mu.Unlock()

	f.debugf("loaded %d DMR ID entries from %s", loaded, f.filename)
	return nil
}

// FindCS resolves id to its callsign, falling back to the numeric ID
// formatted as a string when unknown.
func (f *FileLookup) FindCS(id uint32) string {
	if id == allCallDmrID {
		return "ALL"
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if cs, ok := f.idToCallsign[id]; ok {
		return cs
	}
	return strconv.FormatUint(uint64(id), 10)
}

// FindID resolves callsign (case-insensitive) to its DMR ID, or 0 if
// unknown.
func (f *FileLookup) FindID(callsign string) uint32 {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if callsign == "" {
		return unknownDmrID
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.callsignToID[callsign]
}

// Exists reports whether id is present in the table.
func (f *FileLookup) Exists(id uint32) bool {
	if id == allCallDmrID {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.idToCallsign[id]
	return ok
}

// GetStats returns the table's load statistics.
func (f *FileLookup) GetStats() (totalEntries, reloadCount, errorCount uint32, lastReload time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.totalEntries, f.reloadCount, f.errorCount, f.lastReload
}

// GetEntryCount reports the current table size.
func (f *FileLookup) GetEntryCount() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.totalEntries
}

// GetAllCallsigns returns every callsign currently loaded; intended for
// tests and debugging, not the hot path.
func (f *FileLookup) GetAllCallsigns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.callsignToID))
	for cs := range f.callsignToID {
		out = append(out, cs)
	}
	return out
}

// GetAllIDs returns every DMR ID currently loaded; intended for tests and
// debugging, not the hot path.
func (f *FileLookup) GetAllIDs() []uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]uint32, 0, len(f.idToCallsign))
	for id := range f.idToCallsign {
		out = append(out, id)
	}
	return out
}

// ValidateFile checks that filename exists, is a regular file, and is
// non-empty.
func (f *FileLookup) ValidateFile() error {
	if f.filename == "" {
		return fmt.Errorf("DMR ID filename is empty")
	}
	info, err := os.Stat(f.filename)
	if err != nil {
		return fmt.Errorf("DMR ID file not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("DMR ID path %s is a directory", f.filename)
	}
	if info.Size() == 0 {
		return fmt.Errorf("DMR ID file %s is empty", f.filename)
	}
	return nil
}

// GetFilename returns the configured source file path.
func (f *FileLookup) GetFilename() string { return f.filename }

// GetReloadTime returns the configured reload interval in hours.
func (f *FileLookup) GetReloadTime() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.reloadTime
}

// SetReloadTime updates the reload interval; takes effect on the next
// Start.
func (f *FileLookup) SetReloadTime(hours uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloadTime = hours
}

func (f *FileLookup) debugf(format string, args ...interface{}) {
	if f.debug {
		log.Printf("lookup: "+format, args...)
	}
}
