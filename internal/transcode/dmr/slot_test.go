package dmr

import (
	"testing"

	protodmr "github.com/dbehnke/dvmtranscode/internal/protocol/dmr"
	"github.com/dbehnke/dvmtranscode/internal/protocol/p25"
	"github.com/dbehnke/dvmtranscode/internal/transcode/callctx"
)

// fakeEndpoint records every P25 write a DmrSlot makes so tests can assert
// on emission counts and timing without a real network.Endpoint.
type fakeEndpoint struct {
	ldu1s []p25.Ldu
	ldu2s []p25.Ldu
	tdus  int
}

func (f *fakeEndpoint) WriteP25LDU1(ctx *callctx.CallContext, ldu *p25.Ldu) error {
	f.ldu1s = append(f.ldu1s, *ldu)
	return nil
}

func (f *fakeEndpoint) WriteP25LDU2(ctx *callctx.CallContext, ldu *p25.Ldu) error {
	f.ldu2s = append(f.ldu2s, *ldu)
	return nil
}

func (f *fakeEndpoint) WriteP25TDU(ctx *callctx.CallContext) error {
	f.tdus++
	return nil
}

func voiceFrame(slot uint8, dt protodmr.DataType, srcID, dstID uint32) *protodmr.Frame {
	f := &protodmr.Frame{
		SlotNo:   slot,
		DataType: dt,
		Flco:     protodmr.FlcoGroup,
		SrcID:    srcID,
		DstID:    dstID,
	}
	for i := range f.Payload {
		f.Payload[i] = byte(i + 1) // never all-zero, so no AMBE frame reads as pure silence
	}
	return f
}

func TestDmrSlotIgnoresOtherSlot(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)

	s.ProcessNetwork(voiceFrame(2, protodmr.VoiceSync, 100, 200))
	if s.State() != Idle {
		t.Errorf("state = %v, want Idle (frame was for the other slot)", s.State())
	}
}

func TestDmrSlotVoiceSyncEntersAudio(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)

	s.ProcessNetwork(voiceFrame(1, protodmr.VoiceSync, 100, 200))
	if s.State() != Audio {
		t.Fatalf("state = %v, want Audio after VoiceSync", s.State())
	}
	if s.ctx == nil {
		t.Fatal("expected CallContext to be constructed on VoiceSync")
	}
	if s.ctx.SrcID != 100 || s.ctx.DstID != 200 {
		t.Errorf("ctx = %+v, want src=100 dst=200", s.ctx)
	}
}

func TestDmrSlotDropsVoiceBeforeSync(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)

	s.ProcessNetwork(voiceFrame(1, protodmr.Voice, 100, 200))
	if s.State() != Idle {
		t.Errorf("state = %v, want Idle (bare Voice frame before sync should be dropped)", s.State())
	}
	if len(ep.ldu1s) != 0 {
		t.Error("expected no LDU1 emission from a dropped frame")
	}
}

// TestDmrSlotFullSuperframeEmitsOneLdu1AndOneLdu2 drives exactly 6 DMR voice
// bursts (18 AMBE codewords = one full p25N 0..17 cadence) through the
// slot and checks the n==8/n==17 LDU1/LDU2 emission boundary fires exactly
// once each.
func TestDmrSlotFullSuperframeEmitsOneLdu1AndOneLdu2(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)

	s.ProcessNetwork(voiceFrame(1, protodmr.VoiceSync, 100, 200))
	for i := 0; i < 5; i++ {
		s.ProcessNetwork(voiceFrame(1, protodmr.Voice, 100, 200))
	}

	if len(ep.ldu1s) != 1 {
		t.Errorf("LDU1 emissions = %d, want 1", len(ep.ldu1s))
	}
	if len(ep.ldu2s) != 1 {
		t.Errorf("LDU2 emissions = %d, want 1", len(ep.ldu2s))
	}
	if s.p25N != 0 {
		t.Errorf("p25N = %d, want 0 after wrapping through a full superframe", s.p25N)
	}
}

func TestDmrSlotTerminatorEndsCallAndEmitsTdu(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)

	s.ProcessNetwork(voiceFrame(1, protodmr.VoiceSync, 100, 200))
	s.ProcessNetwork(voiceFrame(1, protodmr.TerminatorWithLc, 100, 200))

	if s.State() != Idle {
		t.Errorf("state = %v, want Idle after terminator", s.State())
	}
	if ep.tdus != 1 {
		t.Errorf("TDU emissions = %d, want 1", ep.tdus)
	}
	if s.ctx != nil {
		t.Error("expected CallContext to be cleared after terminator")
	}
}

func TestDmrSlotTerminatorWhileIdleIsNoOp(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)

	s.ProcessNetwork(voiceFrame(1, protodmr.TerminatorWithLc, 100, 200))
	if s.State() != Idle {
		t.Errorf("state = %v, want Idle", s.State())
	}
	if ep.tdus != 0 {
		t.Errorf("TDU emissions = %d, want 0 from a terminator with no call in progress", ep.tdus)
	}
}

func TestDmrSlotWatchdogExpiryEndsCall(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)
	s.watchdogTimeoutMS = 100

	s.ProcessNetwork(voiceFrame(1, protodmr.VoiceSync, 100, 200))
	if s.State() != Audio {
		t.Fatal("expected Audio state after VoiceSync")
	}

	s.Clock(150)
	if s.State() != Idle {
		t.Errorf("state = %v, want Idle after watchdog expiry", s.State())
	}
	if ep.tdus != 1 {
		t.Errorf("TDU emissions = %d, want 1 on watchdog expiry", ep.tdus)
	}
}

func TestDmrSlotClockNoOpWhenIdle(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)

	s.Clock(10000)
	if s.State() != Idle {
		t.Error("Clock should not affect an already-Idle slot")
	}
	if ep.tdus != 0 {
		t.Error("expected no TDU emission from an idle slot's Clock call")
	}
}

// The network timeout expiring is warn-only and must never end an
// in-progress call the way the separate watchdog timer does.
func TestDmrSlotNetTimeoutWarnsButDoesNotEndCall(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)
	s.watchdogTimeoutMS = 10000
	s.SetNetTimeoutMS(100)

	s.ProcessNetwork(voiceFrame(1, protodmr.VoiceSync, 100, 200))
	s.Clock(150)

	if s.State() != Audio {
		t.Errorf("state = %v, want Audio (network-timeout expiry must not end the call)", s.State())
	}
	if ep.tdus != 0 {
		t.Errorf("TDU emissions = %d, want 0 on a network-timeout-only expiry", ep.tdus)
	}
}

// TestDmrSlotAccumulatesCallStats checks the counters behind the
// end-of-call stats line: bits decoded and call duration accrue while in
// Audio and reset when the call ends.
func TestDmrSlotAccumulatesCallStats(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)

	s.ProcessNetwork(voiceFrame(1, protodmr.VoiceSync, 100, 200))
	s.ProcessNetwork(voiceFrame(1, protodmr.Voice, 100, 200))
	s.Clock(120)

	if want := uint32(2 * 3 * ambeBitsPerCodeword); s.netBits != want {
		t.Errorf("netBits = %d, want %d (2 bursts of 3 AMBE codewords)", s.netBits, want)
	}
	if s.callDurationMS != 120 {
		t.Errorf("callDurationMS = %d, want 120", s.callDurationMS)
	}

	s.ProcessNetwork(voiceFrame(1, protodmr.TerminatorWithLc, 100, 200))
	if s.netBits != 0 || s.callDurationMS != 0 {
		t.Errorf("netBits/callDurationMS = %d/%d, want 0/0 after terminator", s.netBits, s.callDurationMS)
	}
}

func TestDmrSlotWatchdogResetByTraffic(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(1, ep, 0, 0, nil)
	s.watchdogTimeoutMS = 200

	s.ProcessNetwork(voiceFrame(1, protodmr.VoiceSync, 100, 200))
	s.Clock(150)
	if s.State() != Audio {
		t.Fatal("expected still Audio before full timeout elapses")
	}

	// Fresh traffic should reset the watchdog back to full timeout.
	s.ProcessNetwork(voiceFrame(1, protodmr.Voice, 100, 200))
	s.Clock(150)
	if s.State() != Audio {
		t.Error("expected watchdog to have been reset by the intervening voice frame")
	}
}
