package host

import (
	"testing"
	"time"

	protodmr "github.com/dbehnke/dvmtranscode/internal/protocol/dmr"
	protop25 "github.com/dbehnke/dvmtranscode/internal/protocol/p25"
	"github.com/dbehnke/dvmtranscode/internal/transcode/callctx"
)

// fakeEndpoint is a minimal network.Endpoint that replays a queued DMR
// frame and P25 record once, then reports empty, and records every write.
type fakeEndpoint struct {
	dmrIn   *protodmr.Frame
	p25In   []byte
	p25Duid protop25.Duid

	writtenDMR  []*protodmr.Frame
	writtenLDU1 []*protop25.Ldu
	writtenLDU2 []*protop25.Ldu
	tdus        int
	clockCalls  int
}

func (f *fakeEndpoint) ReadDMR() (*protodmr.Frame, bool) {
	if f.dmrIn == nil {
		return nil, false
	}
	frame := f.dmrIn
	f.dmrIn = nil
	return frame, true
}

func (f *fakeEndpoint) ReadP25() ([]byte, protop25.Duid, bool) {
	if f.p25In == nil {
		return nil, 0, false
	}
	record := f.p25In
	duid := f.p25Duid
	f.p25In = nil
	return record, duid, true
}

func (f *fakeEndpoint) WriteDMR(fr *protodmr.Frame) error {
	f.writtenDMR = append(f.writtenDMR, fr)
	return nil
}

func (f *fakeEndpoint) WriteP25LDU1(ctx *callctx.CallContext, ldu *protop25.Ldu) error {
	f.writtenLDU1 = append(f.writtenLDU1, ldu)
	return nil
}

func (f *fakeEndpoint) WriteP25LDU2(ctx *callctx.CallContext, ldu *protop25.Ldu) error {
	f.writtenLDU2 = append(f.writtenLDU2, ldu)
	return nil
}

func (f *fakeEndpoint) WriteP25TDU(ctx *callctx.CallContext) error {
	f.tdus++
	return nil
}

func (f *fakeEndpoint) Clock(ms int) {
	f.clockCalls++
}

func noSleep(time.Duration) {}

func TestHostTickDispatchesDmrFrameToMatchingSlot(t *testing.T) {
	src := &fakeEndpoint{}
	dst := &fakeEndpoint{}
	h := New(src, dst, false, Timing{}, nil)
	h.lastTick = time.Now()

	f := &protodmr.Frame{SlotNo: 2, DataType: protodmr.VoiceSync, SrcID: 1, DstID: 2}
	src.dmrIn = f

	h.Tick(noSleep)

	if h.forward.slot2.State().String() != "Audio" {
		t.Fatalf("slot2 state = %v, want Audio", h.forward.slot2.State())
	}
	if h.forward.slot1.State().String() != "Idle" {
		t.Errorf("slot1 state = %v, want Idle (frame was for slot 2)", h.forward.slot1.State())
	}
}

func TestHostTickDrainsAtMostOneFrameEach(t *testing.T) {
	src := &fakeEndpoint{}
	dst := &fakeEndpoint{}
	h := New(src, dst, false, Timing{}, nil)
	h.lastTick = time.Now()

	src.dmrIn = &protodmr.Frame{SlotNo: 1, DataType: protodmr.VoiceSync}
	h.Tick(noSleep)

	// After one Tick the queued frame should have been drained.
	if src.dmrIn != nil {
		t.Error("expected dmrIn to be drained after one Tick")
	}
}

func TestHostTwoWayCreatesReverseDirection(t *testing.T) {
	src := &fakeEndpoint{}
	dst := &fakeEndpoint{}
	h := New(src, dst, true, Timing{}, nil)

	if h.reverse == nil {
		t.Fatal("expected reverse direction to be constructed when twoWayTranscode is true")
	}
	if h.reverse.src != dst || h.reverse.dst != src {
		t.Error("expected reverse direction to read from dst and write to src")
	}
}

func TestHostOneWayHasNoReverseDirection(t *testing.T) {
	src := &fakeEndpoint{}
	dst := &fakeEndpoint{}
	h := New(src, dst, false, Timing{}, nil)

	if h.reverse != nil {
		t.Error("expected no reverse direction when twoWayTranscode is false")
	}
}

func TestHostTickClocksBothEndpoints(t *testing.T) {
	src := &fakeEndpoint{}
	dst := &fakeEndpoint{}
	h := New(src, dst, false, Timing{}, nil)
	h.lastTick = time.Now()

	h.Tick(noSleep)

	if src.clockCalls != 1 {
		t.Errorf("src.clockCalls = %d, want 1", src.clockCalls)
	}
	if dst.clockCalls != 1 {
		t.Errorf("dst.clockCalls = %d, want 1", dst.clockCalls)
	}
}

// TestHostWiresTimingIntoEveryMachine guards config.System.Timeout and
// config.Network.Jitter against going dead: every DmrSlot/P25Call the host
// constructs must receive the configured network-timeout/jitter values.
func TestHostWiresTimingIntoEveryMachine(t *testing.T) {
	src := &fakeEndpoint{}
	dst := &fakeEndpoint{}
	h := New(src, dst, true, Timing{NetTimeoutMS: 60000, JitterMS: 500}, nil)

	machines := []struct {
		name         string
		netTimeoutMS int
		jitterMS     int
	}{
		{"forward.slot1", h.forward.slot1.NetTimeoutMS(), h.forward.slot1.JitterMS()},
		{"forward.slot2", h.forward.slot2.NetTimeoutMS(), h.forward.slot2.JitterMS()},
		{"forward.call", h.forward.call.NetTimeoutMS(), h.forward.call.JitterMS()},
		{"reverse.slot1", h.reverse.slot1.NetTimeoutMS(), h.reverse.slot1.JitterMS()},
		{"reverse.slot2", h.reverse.slot2.NetTimeoutMS(), h.reverse.slot2.JitterMS()},
		{"reverse.call", h.reverse.call.NetTimeoutMS(), h.reverse.call.JitterMS()},
	}
	for _, m := range machines {
		if m.netTimeoutMS != 60000 {
			t.Errorf("%s.NetTimeoutMS() = %d, want 60000", m.name, m.netTimeoutMS)
		}
		if m.jitterMS != 500 {
			t.Errorf("%s.JitterMS() = %d, want 500", m.name, m.jitterMS)
		}
	}
}
