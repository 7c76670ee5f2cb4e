// Package dmr implements the per-TDMA-slot DMR-to-P25 transcoding state
// machine: DmrSlot consumes DMR network frames and emits P25 LDU1/LDU2/TDU
// records on the destination endpoint.
package dmr

import (
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	protodmr "github.com/dbehnke/dvmtranscode/internal/protocol/dmr"
	"github.com/dbehnke/dvmtranscode/internal/protocol/p25"
	"github.com/dbehnke/dvmtranscode/internal/transcode/callctx"
	"github.com/dbehnke/dvmtranscode/internal/vocoder"
)

// State is the DmrSlot's Idle/Audio state.
type State int

const (
	Idle State = iota
	Audio
)

func (s State) String() string {
	if s == Audio {
		return "Audio"
	}
	return "Idle"
}

// ambePerSlot is the number of AMBE codewords carried in one DMR voice
// burst payload.
const ambePerSlot = 3

// ambeBitsPerCodeword is the size of one AMBE+2 half-rate codeword,
// the denominator of the end-of-call BER figure.
const ambeBitsPerCodeword = 49

// Endpoint is the subset of network.Endpoint a DmrSlot needs. Declared
// locally to avoid an import cycle between internal/network and
// internal/transcode/dmr (network.HomebrewEndpoint satisfies this).
type Endpoint interface {
	WriteP25LDU1(ctx *callctx.CallContext, ldu *p25.Ldu) error
	WriteP25LDU2(ctx *callctx.CallContext, ldu *p25.Ldu) error
	WriteP25TDU(ctx *callctx.CallContext) error
}

// Lookup resolves a DMR subscriber ID to a callsign for log enrichment;
// satisfied by both lookup.FileLookup and lookup.DMRDatabaseAdapter.
type Lookup interface {
	FindCS(id uint32) string
}

// DmrSlot is one DMR TDMA slot's transcoding state machine.
type DmrSlot struct {
	slotNo uint8
	dst    Endpoint
	bridge *vocoder.VoiceBridge
	log    *zap.Logger

	state State
	ctx   *callctx.CallContext

	netLDU1 p25.Ldu
	netLDU2 p25.Ldu
	p25N    uint8

	// lookup optionally resolves SrcID/DstID to callsigns for log lines;
	// nil means no enrichment.
	lookup Lookup

	netFrames uint32
	netLost   uint32
	netErrs   uint32
	netBits   uint32

	// callDurationMS accumulates Clock ticks while in Audio, feeding the
	// elapsed-seconds figure on the end-of-call stats line.
	callDurationMS int

	// watchdogMS ticks down from watchdogTimeoutMS on each Clock call;
	// it is reset to watchdogTimeoutMS by every processed voice frame.
	watchdogMS        int
	watchdogRunning   bool
	watchdogTimeoutMS int

	// netTimeoutMS ticks down from netTimeoutTotal on each Clock call.
	// Unlike the watchdog, its expiry only logs a warning; it never ends
	// the call.
	netTimeoutMS     int
	netTimeoutTotal  int
	netTimeoutWarned bool

	// jitterMS is the maximum acceptable gap between consecutive voice
	// frames before a jitter warning is logged. lastFrameGapMS tracks the elapsed
	// time since the previous frame.
	jitterMS       int
	lastFrameGapMS int
}

const defaultWatchdogMS = 1500
const defaultNetTimeoutMS = 180000
const defaultJitterMS = 360

// New constructs a DmrSlot for the given slot number (1 or 2), writing its
// transcoded P25 output to dst.
func New(slotNo uint8, dst Endpoint, ambeEncodeGainDB, imbeEncodeGainDB float64, log *zap.Logger) *DmrSlot {
	return &DmrSlot{
		slotNo:            slotNo,
		dst:               dst,
		bridge:            vocoder.NewVoiceBridge(ambeEncodeGainDB, imbeEncodeGainDB),
		log:               log,
		state:             Idle,
		watchdogTimeoutMS: defaultWatchdogMS,
		netTimeoutTotal:   defaultNetTimeoutMS,
		jitterMS:          defaultJitterMS,
	}
}

// State reports the machine's current Idle/Audio state.
func (s *DmrSlot) State() State { return s.state }

// SetLookup attaches an optional DMR ID lookup used to enrich end-of-call
// log lines with resolved callsigns.
func (s *DmrSlot) SetLookup(l Lookup) { s.lookup = l }

// SetNetTimeoutMS overrides the warn-only network timeout duration
// (default 180s).
func (s *DmrSlot) SetNetTimeoutMS(ms int) { s.netTimeoutTotal = ms }

// SetJitterMS overrides the maximum acceptable inter-frame gap before a
// jitter warning is logged.
func (s *DmrSlot) SetJitterMS(ms int) { s.jitterMS = ms }

// NetTimeoutMS reports the configured network timeout duration.
func (s *DmrSlot) NetTimeoutMS() int { return s.netTimeoutTotal }

// JitterMS reports the configured jitter-gap threshold.
func (s *DmrSlot) JitterMS() int { return s.jitterMS }

// ProcessNetwork handles one inbound DMR frame.
func (s *DmrSlot) ProcessNetwork(f *protodmr.Frame) {
	if f.SlotNo != s.slotNo {
		return
	}

	wasAudio := s.state == Audio
	s.watchdogMS = s.watchdogTimeoutMS
	s.watchdogRunning = true
	s.netTimeoutMS = s.netTimeoutTotal
	s.netTimeoutWarned = false
	if wasAudio {
		s.checkJitter()
	}

	switch f.DataType {
	case protodmr.VoiceSync, protodmr.Voice:
		s.processVoice(f)
	case protodmr.TerminatorWithLc:
		s.processTerminator()
	default:
		// Headers and data bursts carry no voice payload for this core.
	}
}

// checkJitter compares the gap since the previous DMR frame against
// jitterMS and logs a warning if it was exceeded. It never changes slot state.
func (s *DmrSlot) checkJitter() {
	if s.jitterMS > 0 && s.lastFrameGapMS > s.jitterMS && s.log != nil {
		s.log.Warn("DMR slot packet jitter exceeded",
			zap.Uint8("slot", s.slotNo),
			zap.Int("gapMs", s.lastFrameGapMS),
			zap.Int("jitterMs", s.jitterMS))
	}
	s.lastFrameGapMS = 0
}

func (s *DmrSlot) processVoice(f *protodmr.Frame) {
	if f.DataType == protodmr.VoiceSync && s.state == Idle {
		s.ctx = callctx.New(f.SrcID, f.DstID, f.Flco == protodmr.FlcoGroup)
		s.netFrames = 0
		s.netLost = 0
		s.netErrs = 0
		s.netBits = 0
		s.callDurationMS = 0
		s.lastFrameGapMS = 0
	}

	if s.state != Audio && f.DataType == protodmr.Voice {
		// Voice continuation without having seen a sync frame first; drop.
		return
	}

	frames := protodmr.SplitAmbe(f.Payload)
	s.decodeAndProcessAMBE(frames)
	s.netFrames++
}

func (s *DmrSlot) processTerminator() {
	if s.state != Audio {
		return
	}

	if s.log != nil {
		s.log.Info("DMR slot end of voice transmission", s.callStatsFields()...)
	}

	s.endCall()
}

// callStatsFields builds the end-of-call stats line: frame/loss counts,
// loss and bit-error percentages, and elapsed call duration. Logged on
// both the terminator and watchdog-expiry paths.
func (s *DmrSlot) callStatsFields() []zap.Field {
	var lostPct, berPct float64
	if s.netFrames > 0 {
		lostPct = float64(s.netLost) * 100 / float64(s.netFrames)
	}
	if s.netBits > 0 {
		berPct = float64(s.netErrs) * 100 / float64(s.netBits)
	}

	fields := []zap.Field{
		zap.Uint8("slot", s.slotNo),
		zap.String("frames", humanize.Comma(int64(s.netFrames))),
		zap.Uint32("lost", s.netLost),
		zap.Float64("lostPct", lostPct),
		zap.Float64("berPct", berPct),
		zap.Float64("durationS", float64(s.callDurationMS)/1000),
	}
	if s.lookup != nil && s.ctx != nil {
		fields = append(fields, zap.String("srcCallsign", s.lookup.FindCS(s.ctx.SrcID)))
	}
	return fields
}

func (s *DmrSlot) endCall() {
	s.state = Idle
	s.watchdogRunning = false
	s.netTimeoutMS = 0
	s.netTimeoutWarned = false
	s.lastFrameGapMS = 0
	s.netFrames = 0
	s.netLost = 0
	s.netErrs = 0
	s.netBits = 0
	s.callDurationMS = 0

	if s.ctx != nil {
		_ = s.dst.WriteP25TDU(s.ctx)
	}

	s.ctx = nil
	s.p25N = 0
	s.netLDU1 = p25.Ldu{}
	s.netLDU2 = p25.Ldu{}
}

// decodeAndProcessAMBE regenerates PCM from each of the three AMBE
// codewords in a DMR burst, re-encodes to IMBE, and accumulates into the
// LDU1/LDU2 buffers at the slot chosen by p25N, emitting a completed LDU
// at the n==8/n==17 boundary.
func (s *DmrSlot) decodeAndProcessAMBE(frames [3][9]byte) {
	if s.state == Idle {
		s.state = Audio
		s.p25N = 0
	}

	if s.p25N > 17 {
		s.p25N = 0
	}
	if s.p25N == 0 {
		s.netLDU1 = p25.Ldu{}
	}
	if s.p25N == 9 {
		s.netLDU2 = p25.Ldu{}
	}

	for n := 0; n < ambePerSlot; n++ {
		pcm, errs := s.bridge.DecodeAmbe(frames[n])
		s.netErrs += uint32(errs)
		s.netBits += ambeBitsPerCodeword

		imbe := s.bridge.EncodeImbe(pcm)

		if s.p25N < 9 {
			p25.InjectImbe(&s.netLDU1, int(s.p25N), imbe)
		} else {
			p25.InjectImbe(&s.netLDU2, int(s.p25N-9), imbe)
		}

		if s.p25N == 8 {
			_ = s.dst.WriteP25LDU1(s.ctx, &s.netLDU1)
		}
		if s.p25N == 17 {
			_ = s.dst.WriteP25LDU2(s.ctx, &s.netLDU2)
		}

		s.p25N++
		if s.p25N > 17 {
			s.p25N = 0
		}
	}
}

// Clock advances the slot's watchdog, network-timeout, and jitter-gap
// counters by ms milliseconds. If no frame has been seen for
// watchdogTimeoutMS while in Audio, the call is ended and a P25 TDU
// emitted. The network timeout expiring only logs a warning once per
// timeout period and never ends the call.
func (s *DmrSlot) Clock(ms int) {
	if s.state != Audio || !s.watchdogRunning {
		return
	}

	s.lastFrameGapMS += ms
	s.callDurationMS += ms

	if s.netTimeoutTotal > 0 {
		s.netTimeoutMS -= ms
		if s.netTimeoutMS <= 0 && !s.netTimeoutWarned {
			s.netTimeoutWarned = true
			if s.log != nil {
				s.log.Warn("DMR slot network timeout exceeded", zap.Uint8("slot", s.slotNo))
			}
		}
	}

	s.watchdogMS -= ms
	if s.watchdogMS <= 0 {
		if s.log != nil {
			s.log.Info("DMR slot network watchdog expired, ending voice transmission",
				s.callStatsFields()...)
		}
		s.endCall()
	}
}
