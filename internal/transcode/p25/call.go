// Package p25 implements the per-call P25-to-DMR transcoding state
// machine: P25Call consumes incoming P25 network records (LDU1/LDU2/TDU)
// and emits DMR voice bursts on the destination endpoint.
package p25

import (
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	protodmr "github.com/dbehnke/dvmtranscode/internal/protocol/dmr"
	protop25 "github.com/dbehnke/dvmtranscode/internal/protocol/p25"
	"github.com/dbehnke/dvmtranscode/internal/transcode/callctx"
	"github.com/dbehnke/dvmtranscode/internal/vocoder"
)

// State is the P25Call's Idle/Audio state.
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

// Endpoint is the subset of network.Endpoint a P25Call needs. Declared
// locally to avoid an import cycle with internal/network
// (network.HomebrewEndpoint satisfies this).
type Endpoint interface {
	WriteDMR(f *protodmr.Frame) error
}

// Lookup resolves a DMR subscriber ID to a callsign for log enrichment;
// satisfied by both lookup.FileLookup and lookup.DMRDatabaseAdapter.
type Lookup interface {
	FindCS(id uint32) string
}

// imbeCount is the number of IMBE codewords carried in one LDU record.
const imbeCount = 9

// imbeBitsPerCodeword is the size of one IMBE full-rate codeword, the
// denominator of the end-of-call BER figure.
const imbeBitsPerCodeword = 88

// P25Call is one P25 call's transcoding state machine, handling both the
// LDU1 and LDU2 half of each superframe.
type P25Call struct {
	slotNo uint8
	dst    Endpoint
	bridge *vocoder.VoiceBridge
	log    *zap.Logger

	state State
	ctx   *callctx.CallContext

	lastImbe vocoder.ImbeCodeword // insertMissingAudio substitution source

	netFrames uint32
	netLost   uint32
	netErrs   uint32
	netBits   uint32

	// callDurationMS accumulates Clock ticks while in Audio, feeding the
	// elapsed-seconds figure on the end-of-call stats line.
	callDurationMS int

	// dmrSeqNo counts every DMR voice burst (three AMBE codewords) emitted
	// in this call; dmrN is dmrSeqNo mod 6, the burst's superframe position.
	dmrSeqNo uint32

	// embeddedLC accumulates the call's Full LC and doles it out across
	// burst positions 0..5 of the DMR voice superframe; see
	// protodmr.EmbeddedLC.
	embeddedLC protodmr.EmbeddedLC

	// watchdogMS ticks down from watchdogTimeoutMS on each Clock call; it
	// is reset to watchdogTimeoutMS by every processed LDU1/LDU2 record,
	// mirroring DmrSlot's network watchdog.
	watchdogMS        int
	watchdogRunning   bool
	watchdogTimeoutMS int

	// netTimeoutMS ticks down from netTimeoutTotal on each Clock call.
	// Unlike the watchdog, its expiry only logs a warning; it never ends
	// the call.
	netTimeoutMS     int
	netTimeoutTotal  int
	netTimeoutWarned bool

	// jitterMS is the maximum acceptable gap between consecutive
	// LDU1/LDU2 records before a jitter warning is logged. lastFrameGapMS
	// tracks the elapsed time since the previous record.
	jitterMS       int
	lastFrameGapMS int

	// lookup optionally resolves SrcID/DstID to callsigns for log lines;
	// nil means no enrichment.
	lookup Lookup
}

const defaultAmbeGainDB = 0
const defaultImbeGainDB = 0
const defaultWatchdogMS = 1500
const defaultNetTimeoutMS = 180000
const defaultJitterMS = 360

// New constructs a P25Call for the given DMR destination slot, writing its
// transcoded DMR output to dst.
func New(slotNo uint8, dst Endpoint, ambeEncodeGainDB, imbeEncodeGainDB float64, log *zap.Logger) *P25Call {
	return &P25Call{
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

// SetNetTimeoutMS overrides the warn-only network timeout duration
// (default 180s).
func (c *P25Call) SetNetTimeoutMS(ms int) { c.netTimeoutTotal = ms }

// SetJitterMS overrides the maximum acceptable inter-record gap before a
// jitter warning is logged.
func (c *P25Call) SetJitterMS(ms int) { c.jitterMS = ms }

// NetTimeoutMS reports the configured network timeout duration.
func (c *P25Call) NetTimeoutMS() int { return c.netTimeoutTotal }

// JitterMS reports the configured jitter-gap threshold.
func (c *P25Call) JitterMS() int { return c.jitterMS }

// State reports the machine's current Idle/Audio state.
func (c *P25Call) State() State { return c.state }

// SetLookup attaches an optional DMR ID lookup used to enrich end-of-call
// log lines with resolved callsigns.
func (c *P25Call) SetLookup(l Lookup) { c.lookup = l }

// ProcessLDU1 handles one incoming LDU1 network record.
// ProcessLDU1 validates the record's magic prefix and parses it into an LDU
// buffer (a record failing validation counts as lost), substituting missing
// IMBE codewords with the last-known-good codeword.
func (c *P25Call) ProcessLDU1(record []byte) {
	var ldu protop25.Ldu
	if !protop25.ParseNetworkRecord(record, false, &ldu) {
		c.netLost++
		return
	}

	wasAudio := c.state == Audio
	c.watchdogMS = c.watchdogTimeoutMS
	c.watchdogRunning = true
	c.netTimeoutMS = c.netTimeoutTotal
	c.netTimeoutWarned = false

	if c.state == Idle {
		lco, mfID, srcID, dstID, serviceOptions := protop25.ExtractControlLC(&ldu)
		c.ctx = callctx.New(srcID, dstID, lco&0x01 == 0)
		c.ctx.ServiceOptions(serviceOptions)
		_ = mfID
		c.state = Audio
		c.dmrSeqNo = 0
		c.netFrames = 0
		c.netLost = 0
		c.netErrs = 0
		c.netBits = 0
		c.callDurationMS = 0
		c.lastFrameGapMS = 0
		c.writeDmrVoiceHeader()
	} else if wasAudio {
		c.checkJitter()
	}

	c.insertMissingAudio(&ldu)
	c.decodeAndProcessIMBE(&ldu)
}

// ProcessLDU2 handles one incoming LDU2 network record. If no call is in
// progress, a CallContext is synthesized from the LDU2's own control-LC
// fields, since the real
// P25 stream may begin mid-superframe.
func (c *P25Call) ProcessLDU2(record []byte) {
	var ldu protop25.Ldu
	if !protop25.ParseNetworkRecord(record, true, &ldu) {
		c.netLost++
		return
	}

	wasAudio := c.state == Audio
	c.watchdogMS = c.watchdogTimeoutMS
	c.watchdogRunning = true
	c.netTimeoutMS = c.netTimeoutTotal
	c.netTimeoutWarned = false

	if c.state == Idle {
		lco, mfID, srcID, dstID, serviceOptions := protop25.ExtractControlLC(&ldu)
		c.ctx = callctx.New(srcID, dstID, lco&0x01 == 0)
		c.ctx.ServiceOptions(serviceOptions)
		_ = mfID
		c.state = Audio
		c.dmrSeqNo = 0
		c.netFrames = 0
		c.netLost = 0
		c.netErrs = 0
		c.netBits = 0
		c.callDurationMS = 0
		c.lastFrameGapMS = 0
		c.writeDmrVoiceHeader()
	} else if wasAudio {
		c.checkJitter()
	}

	algID, keyID, mi := protop25.ExtractEncryptionSync(&ldu)
	c.ctx.AlgID = algID
	c.ctx.KeyID = keyID
	c.ctx.MessageIndicator = mi

	c.insertMissingAudio(&ldu)
	c.decodeAndProcessIMBE(&ldu)
}

// ProcessTDU handles a P25 terminator, ending the call and emitting the
// padded DMR terminator-with-LC sequence.
func (c *P25Call) ProcessTDU() {
	if c.state != Audio {
		return
	}

	if c.log != nil {
		c.log.Info("P25 call end of voice transmission", c.callStatsFields()...)
	}

	c.writeDmrTerminator()
	c.endCall()
}

// callStatsFields builds the end-of-call stats line: frame/loss counts,
// loss and bit-error percentages, and elapsed call duration. Logged on
// both the terminator and watchdog-expiry paths.
func (c *P25Call) callStatsFields() []zap.Field {
	var lostPct, berPct float64
	if c.netFrames > 0 {
		lostPct = float64(c.netLost) * 100 / float64(c.netFrames)
	}
	if c.netBits > 0 {
		berPct = float64(c.netErrs) * 100 / float64(c.netBits)
	}

	fields := []zap.Field{
		zap.Uint8("slot", c.slotNo),
		zap.String("frames", humanize.Comma(int64(c.netFrames))),
		zap.Uint32("lost", c.netLost),
		zap.Float64("lostPct", lostPct),
		zap.Float64("berPct", berPct),
		zap.Float64("durationS", float64(c.callDurationMS)/1000),
	}
	if c.lookup != nil && c.ctx != nil {
		fields = append(fields, zap.String("srcCallsign", c.lookup.FindCS(c.ctx.SrcID)))
	}
	return fields
}

func (c *P25Call) endCall() {
	c.state = Idle
	c.watchdogRunning = false
	c.netTimeoutMS = 0
	c.netTimeoutWarned = false
	c.lastFrameGapMS = 0
	c.ctx = nil
	c.dmrSeqNo = 0
	c.netFrames = 0
	c.netLost = 0
	c.netErrs = 0
	c.netBits = 0
	c.callDurationMS = 0
	c.lastImbe = vocoder.ImbeCodeword{}
}

// checkJitter compares the gap since the previous LDU1/LDU2 record against
// jitterMS and logs a warning if it was exceeded. It never changes call state.
func (c *P25Call) checkJitter() {
	if c.jitterMS > 0 && c.lastFrameGapMS > c.jitterMS && c.log != nil {
		c.log.Warn("P25 call packet jitter exceeded",
			zap.Uint8("slot", c.slotNo),
			zap.Int("gapMs", c.lastFrameGapMS),
			zap.Int("jitterMs", c.jitterMS))
	}
	c.lastFrameGapMS = 0
}

// Clock advances the call's watchdog, network-timeout, and jitter-gap
// counters by ms milliseconds. If no LDU1/LDU2 record has arrived for
// watchdogTimeoutMS while in Audio, the call is ended and the padded DMR
// terminator sequence emitted, mirroring DmrSlot.Clock's network watchdog.
// The network timeout expiring only logs a warning once per timeout period
// and never ends the call.
func (c *P25Call) Clock(ms int) {
	if c.state != Audio || !c.watchdogRunning {
		return
	}

	c.lastFrameGapMS += ms
	c.callDurationMS += ms

	if c.netTimeoutTotal > 0 {
		c.netTimeoutMS -= ms
		if c.netTimeoutMS <= 0 && !c.netTimeoutWarned {
			c.netTimeoutWarned = true
			if c.log != nil {
				c.log.Warn("P25 call network timeout exceeded", zap.Uint8("slot", c.slotNo))
			}
		}
	}

	c.watchdogMS -= ms
	if c.watchdogMS <= 0 {
		if c.log != nil {
			c.log.Info("P25 call network watchdog expired, ending voice transmission",
				c.callStatsFields()...)
		}
		c.writeDmrTerminator()
		c.endCall()
	}
}

// insertMissingAudio checks each of the nine IMBE slots for an all-zero
// first byte (the packet-loss signal) and substitutes the last-known-good
// IMBE codeword in its place. The check uses protop25.IsImbeSilent, i.e.
// the same imbeOffsets windows used for codeword extraction.
func (c *P25Call) insertMissingAudio(ldu *protop25.Ldu) {
	for n := 0; n < imbeCount; n++ {
		if protop25.IsImbeSilent(ldu, n) {
			protop25.InjectImbe(ldu, n, [protop25.ImbeLength]byte(c.lastImbe))
			c.netLost++
		}
	}
}

// decodeAndProcessIMBE converts each of the nine IMBE codewords in an LDU
// to PCM and re-encodes to AMBE+2, emitting one DMR voice burst every three
// codewords (one burst = 3 AMBE frames).
func (c *P25Call) decodeAndProcessIMBE(ldu *protop25.Ldu) {
	var ambeFrames [3][9]byte
	ambeIdx := 0

	for n := 0; n < imbeCount; n++ {
		cw := vocoder.ImbeCodeword(protop25.ExtractImbe(ldu, n))
		c.lastImbe = cw

		pcm, errs := c.bridge.DecodeImbe(cw)
		c.netErrs += uint32(errs)
		c.netBits += imbeBitsPerCodeword

		ambe := c.bridge.EncodeAmbe(pcm)
		ambeFrames[ambeIdx] = ambe
		ambeIdx++

		if ambeIdx == 3 {
			c.writeDmrVoice(ambeFrames)
			ambeIdx = 0
		}

		c.netFrames++
	}
}

// dmrN returns the current cadence position (0..5) used to pick
// VoiceSync/Voice framing and the embedded-LC fragment.
func (c *P25Call) dmrN() uint8 { return uint8(c.dmrSeqNo % 6) }

// fullLCServiceOptions re-packs CallContext's decoded emergency/encrypted/
// priority fields into the single DMR service-options byte EncodeFullLC
// expects, mirroring callctx.CallContext.ServiceOptions' bit layout.
func (c *P25Call) fullLCServiceOptions() byte {
	var b byte
	if c.ctx.Emergency {
		b |= 0x80
	}
	if c.ctx.Encrypted {
		b |= 0x40
	}
	b |= c.ctx.Priority & 0x07
	return b
}

func (c *P25Call) fullLC() protodmr.FullLC {
	flco := protodmr.FlcoGroup
	if !c.ctx.Group {
		flco = protodmr.FlcoPrivate
	}
	return protodmr.FullLC{
		FLCO:           flco,
		ServiceOptions: c.fullLCServiceOptions(),
		DstID:          c.ctx.DstID,
		SrcID:          c.ctx.SrcID,
	}
}

func (c *P25Call) writeDmrVoiceHeader() {
	lc := c.fullLC()
	c.embeddedLC = protodmr.NewEmbeddedLC(lc)

	f := &protodmr.Frame{
		SlotNo:   c.slotNo,
		DataType: protodmr.VoiceLcHeader,
		SeqNo:    0,
		N:        0,
		SrcID:    c.ctx.SrcID,
		DstID:    c.ctx.DstID,
		Payload:  protodmr.EncodeFullLC(lc),
	}
	if c.ctx.Group {
		f.Flco = protodmr.FlcoGroup
	} else {
		f.Flco = protodmr.FlcoPrivate
	}
	_ = c.dst.WriteDMR(f)
}

func (c *P25Call) writeDmrVoice(frames [3][9]byte) {
	n := c.dmrN()
	dt := protodmr.Voice
	if n == 0 {
		dt = protodmr.VoiceSync
	}

	payload := protodmr.JoinAmbe(frames, c.embeddedLC.Fragment(n))

	f := &protodmr.Frame{
		SlotNo:   c.slotNo,
		DataType: dt,
		SeqNo:    uint8(c.dmrSeqNo),
		N:        n,
		SrcID:    c.ctx.SrcID,
		DstID:    c.ctx.DstID,
		Payload:  payload,
	}
	if c.ctx.Group {
		f.Flco = protodmr.FlcoGroup
	} else {
		f.Flco = protodmr.FlcoPrivate
	}
	_ = c.dst.WriteDMR(f)

	c.dmrSeqNo++
}

// writeDmrTerminator pads the voice stream out to the next 6-burst
// boundary with silence-equivalent voice frames, then emits the
// terminator-with-LC burst. dmrSeqNo increments only after a burst is
// written, so it is already the count of completed bursts and n=dmrSeqNo%6
// needs no lag compensation; a call ending exactly on a 6-burst boundary
// (n==0) needs no padding at all.
func (c *P25Call) writeDmrTerminator() {
	n := c.dmrSeqNo % 6
	if n > 0 {
		fill := 6 - n
		var silence [3][9]byte
		for i := uint32(0); i < fill; i++ {
			c.writeDmrVoice(silence)
		}
	}

	f := &protodmr.Frame{
		SlotNo:   c.slotNo,
		DataType: protodmr.TerminatorWithLc,
		SeqNo:    uint8(c.dmrSeqNo),
		N:        c.dmrN(),
		SrcID:    c.ctx.SrcID,
		DstID:    c.ctx.DstID,
		Payload:  protodmr.EncodeFullLC(c.fullLC()),
	}
	if c.ctx.Group {
		f.Flco = protodmr.FlcoGroup
	} else {
		f.Flco = protodmr.FlcoPrivate
	}
	_ = c.dst.WriteDMR(f)
}
