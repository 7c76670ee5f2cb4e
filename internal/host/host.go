// Package host implements the transcoder's top-level run loop: it owns
// the source and destination network endpoints, constructs the DMR and
// P25 transcoding machines, and drives everything from one logical clock.
package host

import (
	"time"

	"go.uber.org/zap"

	"github.com/dbehnke/dvmtranscode/internal/network"
	"github.com/dbehnke/dvmtranscode/internal/protocol/p25"
	transdmr "github.com/dbehnke/dvmtranscode/internal/transcode/dmr"
	transp25 "github.com/dbehnke/dvmtranscode/internal/transcode/p25"
)

// warmupMS is the duration the host pumps only network clocks before
// starting the transcoding loop, giving the repeater links time to reach
// Running.
const warmupMS = 15000

// direction bundles one source→destination transcoding pipeline: two DMR
// slots reading DMR frames from src and writing P25 to dst, and one P25
// call reading P25 records from src and writing DMR to dst. newDirection
// always takes an explicit (src, dst) pair: the host drains src for these
// machines and hands dst to each machine's constructor as its output, so
// the direction each machine transcodes is fixed at construction.
type direction struct {
	src   network.Endpoint
	dst   network.Endpoint
	slot1 *transdmr.DmrSlot
	slot2 *transdmr.DmrSlot
	call  *transp25.P25Call
}

// Timing carries the network-timeout/jitter values from config.SystemConfig and
// config.JitterConfig through to every DmrSlot/P25Call the host drives; a
// zero Timing leaves each machine's own defaults in place.
type Timing struct {
	NetTimeoutMS int
	JitterMS     int
}

func newDirection(src, dst network.Endpoint, timing Timing, log *zap.Logger) *direction {
	d := &direction{
		src:   src,
		dst:   dst,
		slot1: transdmr.New(1, dst, 0, 0, log),
		slot2: transdmr.New(2, dst, 0, 0, log),
		call:  transp25.New(1, dst, 0, 0, log),
	}
	if timing.NetTimeoutMS > 0 {
		d.slot1.SetNetTimeoutMS(timing.NetTimeoutMS)
		d.slot2.SetNetTimeoutMS(timing.NetTimeoutMS)
		d.call.SetNetTimeoutMS(timing.NetTimeoutMS)
	}
	if timing.JitterMS > 0 {
		d.slot1.SetJitterMS(timing.JitterMS)
		d.slot2.SetJitterMS(timing.JitterMS)
		d.call.SetJitterMS(timing.JitterMS)
	}
	return d
}

// drain pops at most one DMR frame and one P25 record from src per call so
// neither protocol can starve the other.
func (d *direction) drain() {
	if f, ok := d.src.ReadDMR(); ok {
		switch f.SlotNo {
		case 1:
			d.slot1.ProcessNetwork(f)
		case 2:
			d.slot2.ProcessNetwork(f)
		}
	}

	if record, duid, ok := d.src.ReadP25(); ok {
		switch duid {
		case p25.DuidLdu1:
			d.call.ProcessLDU1(record)
		case p25.DuidLdu2:
			d.call.ProcessLDU2(record)
		case p25.DuidTdu, p25.DuidTdulc:
			d.call.ProcessTDU()
		}
	}
}

func (d *direction) clock(ms int) {
	d.slot1.Clock(ms)
	d.slot2.Clock(ms)
	d.call.Clock(ms)
}

func (d *direction) setLookup(l Lookup) {
	d.slot1.SetLookup(l)
	d.slot2.SetLookup(l)
	d.call.SetLookup(l)
}

// Host drives the source↔destination transcoding pipeline(s).
type Host struct {
	src network.Endpoint
	dst network.Endpoint
	log *zap.Logger

	forward *direction
	reverse *direction // nil unless two-way transcoding is enabled

	lastTick time.Time
}

// Lookup resolves a DMR subscriber ID to a callsign for log enrichment;
// satisfied by both lookup.FileLookup and lookup.DMRDatabaseAdapter.
type Lookup interface {
	FindCS(id uint32) string
}

// SetLookup attaches an optional DMR ID lookup to every DmrSlot/P25Call the
// host drives, enriching their end-of-call log lines with callsigns.
func (h *Host) SetLookup(l Lookup) {
	h.forward.setLookup(l)
	if h.reverse != nil {
		h.reverse.setLookup(l)
	}
}

// New constructs a Host. twoWayTranscode adds a second DmrSlot pair and
// P25Call running in the reverse direction. timing carries the configured
// network-timeout/jitter values to every transcoding machine the host
// drives.
func New(src, dst network.Endpoint, twoWayTranscode bool, timing Timing, log *zap.Logger) *Host {
	h := &Host{
		src:     src,
		dst:     dst,
		log:     log,
		forward: newDirection(src, dst, timing, log),
	}
	if twoWayTranscode {
		h.reverse = newDirection(dst, src, timing, log)
	}
	return h
}

// Warmup pumps only the network endpoints' clocks for warmupMS so the
// Homebrew link(s) reach Running before any transcoding begins.
func (h *Host) Warmup(sleep func(time.Duration)) {
	elapsed := 0
	last := time.Now()
	for elapsed < warmupMS {
		now := time.Now()
		ms := int(now.Sub(last).Milliseconds())
		last = now
		elapsed += ms

		h.src.Clock(ms)
		h.dst.Clock(ms)

		if ms < 2 {
			sleep(time.Millisecond)
		}
	}
	if h.log != nil {
		h.log.Info("host is up and running")
	}
	h.lastTick = time.Now()
}

// Tick runs exactly one iteration of the main loop: drain one DMR frame and
// one P25 record per direction, tick every machine, tick both network
// endpoints.
func (h *Host) Tick(sleep func(time.Duration)) {
	now := time.Now()
	ms := int(now.Sub(h.lastTick).Milliseconds())
	h.lastTick = now

	h.forward.drain()
	if h.reverse != nil {
		h.reverse.drain()
	}

	h.forward.clock(ms)
	if h.reverse != nil {
		h.reverse.clock(ms)
	}

	h.src.Clock(ms)
	h.dst.Clock(ms)

	if ms < 2 {
		sleep(time.Millisecond)
	}
}

// Run executes Warmup followed by the main loop until stop is closed.
func (h *Host) Run(stop <-chan struct{}) {
	h.Warmup(time.Sleep)
	for {
		select {
		case <-stop:
			return
		default:
			h.Tick(time.Sleep)
		}
	}
}
