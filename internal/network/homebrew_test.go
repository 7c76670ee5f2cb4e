package network

import (
	"testing"

	"github.com/dbehnke/dvmtranscode/internal/protocol/dmr"
	"github.com/dbehnke/dvmtranscode/internal/protocol/p25"
	"github.com/dbehnke/dvmtranscode/internal/transcode/callctx"
)

func TestLinkStatusString(t *testing.T) {
	tests := []struct {
		s    LinkStatus
		want string
	}{
		{WaitingConnect, "WaitingConnect"},
		{WaitingLogin, "WaitingLogin"},
		{WaitingAuthorisation, "WaitingAuthorisation"},
		{WaitingConfig, "WaitingConfig"},
		{Running, "Running"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("LinkStatus(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func newTestEndpoint(t *testing.T) *HomebrewEndpoint {
	t.Helper()
	e, err := NewHomebrewEndpoint("127.0.0.1", 62031, 0, 1, "passw0rd", RepeaterConfig{
		Identity: "TCD001",
	})
	if err != nil {
		t.Fatalf("NewHomebrewEndpoint: %v", err)
	}
	return e
}

func TestNewHomebrewEndpointDefaultsSoftwareID(t *testing.T) {
	e := newTestEndpoint(t)
	if e.config.SoftwareID != "TCD_DMR_P25" {
		t.Errorf("SoftwareID = %q, want TCD_DMR_P25", e.config.SoftwareID)
	}
	if e.status != WaitingConnect {
		t.Errorf("initial status = %v, want WaitingConnect", e.status)
	}
}

func TestBuildConfigPacket(t *testing.T) {
	e := newTestEndpoint(t)

	packet := e.buildConfigPacket()
	if len(packet) != 168 {
		t.Fatalf("RPTC packet length = %d, want 168", len(packet))
	}
	if string(packet[0:4]) != tagConfig {
		t.Errorf("tag = %q, want %q", packet[0:4], tagConfig)
	}

	body := packet[8:]
	if string(body[0:8]) != "TCD001  " {
		t.Errorf("identity field = %q, want %q", body[0:8], "TCD001  ")
	}
	if string(body[85:101]) != "TCD_DMR_P25     " {
		t.Errorf("software ID field = %q, want %q", body[85:101], "TCD_DMR_P25     ")
	}
	if string(body[101:106]) != "00000" {
		t.Errorf("reconnect field = %q, want %q", body[101:106], "00000")
	}
}

// TestHandleDmrdVoiceWithLowNIsNotMisreadAsHeader guards the receive parse
// against treating a plain voice burst at n=1 or n=2 as a VoiceLcHeader or
// TerminatorWithLc: those data types are only valid with the data-sync flag
// set, the same way WriteDMR emits them.
func TestHandleDmrdVoiceWithLowNIsNotMisreadAsHeader(t *testing.T) {
	for _, n := range []byte{1, 2} {
		e := newTestEndpoint(t)

		packet := make([]byte, dmrdPacketLength)
		copy(packet[0:4], tagDmrData)
		packet[15] = n // slot 1, group, plain voice continuation

		e.handleDmrd(packet)

		got, ok := e.ReadDMR()
		if !ok {
			t.Fatalf("n=%d: expected one queued DMR frame", n)
		}
		if got.DataType != dmr.Voice {
			t.Errorf("n=%d: DataType = %v, want Voice", n, got.DataType)
		}
	}
}

// A NAK received while Running only drops back to WaitingLogin for a fresh
// login handshake, not all the way to WaitingConnect.
func TestHandleNakDowngradesRunningLinkToWaitingLogin(t *testing.T) {
	e := newTestEndpoint(t)
	e.status = Running

	e.handlePacket([]byte(tagMasterNak))

	if e.status != WaitingLogin {
		t.Errorf("status = %v, want WaitingLogin after a NAK while Running", e.status)
	}
}

// A NAK received mid-handshake (WaitingAuthorisation/WaitingConfig) forces
// a full reconnect back to WaitingConnect rather than jumping to
// WaitingLogin from a stale state.
func TestHandleNakForcesFullReconnectFromStaleHandshakeState(t *testing.T) {
	tests := []LinkStatus{WaitingAuthorisation, WaitingConfig}
	for _, start := range tests {
		e := newTestEndpoint(t)
		e.status = start

		e.handlePacket([]byte(tagMasterNak))

		if e.status != WaitingConnect {
			t.Errorf("starting status %v: status after NAK = %v, want WaitingConnect", start, e.status)
		}
	}
}

func TestHandleDmrdRoundTrip(t *testing.T) {
	e := newTestEndpoint(t)
	e.status = Running

	f := &dmr.Frame{
		SlotNo:   2,
		DataType: dmr.VoiceSync,
		SeqNo:    5,
		N:        0,
		Flco:     dmr.FlcoPrivate,
		SrcID:    0x001234,
		DstID:    0x005678,
	}
	for i := range f.Payload {
		f.Payload[i] = byte(i)
	}

	// Build the DMRD packet the way WriteDMR would, then feed it back
	// through handleDmrd to confirm the parse matches the encode.
	packet := make([]byte, dmrdPacketLength)
	copy(packet[0:4], tagDmrData)
	packet[4] = 9
	packet[5] = byte(f.SrcID >> 16)
	packet[6] = byte(f.SrcID >> 8)
	packet[7] = byte(f.SrcID)
	packet[8] = byte(f.DstID >> 16)
	packet[9] = byte(f.DstID >> 8)
	packet[10] = byte(f.DstID)
	packet[15] = 0x80 | 0x40 | 0x10 // slot2, private, voice sync, n=0
	copy(packet[20:53], f.Payload[:])

	e.handleDmrd(packet)

	got, ok := e.ReadDMR()
	if !ok {
		t.Fatal("expected one queued DMR frame")
	}
	if got.SlotNo != 2 {
		t.Errorf("SlotNo = %d, want 2", got.SlotNo)
	}
	if got.Flco != dmr.FlcoPrivate {
		t.Errorf("Flco = %v, want FlcoPrivate", got.Flco)
	}
	if got.DataType != dmr.VoiceSync {
		t.Errorf("DataType = %v, want VoiceSync", got.DataType)
	}
	if got.SrcID != f.SrcID || got.DstID != f.DstID {
		t.Errorf("SrcID/DstID = %d/%d, want %d/%d", got.SrcID, got.DstID, f.SrcID, f.DstID)
	}
	if got.Payload != f.Payload {
		t.Error("payload bytes not preserved across parse")
	}
}

func TestHandleP25dRoundTrip(t *testing.T) {
	e := newTestEndpoint(t)
	e.status = Running

	var ldu p25.Ldu
	for i := range ldu {
		ldu[i] = byte(i % 251)
	}

	packet := make([]byte, 5+p25.LduLength)
	copy(packet[0:4], tagP25Data)
	packet[4] = byte(p25.DuidLdu1)
	copy(packet[5:], ldu[:])

	e.handleP25d(packet)

	record, duid, ok := e.ReadP25()
	if !ok {
		t.Fatal("expected one queued P25 record")
	}
	if duid != p25.DuidLdu1 {
		t.Errorf("duid = %v, want LDU1", duid)
	}
	if len(record) != p25.LduLength {
		t.Errorf("record length = %d, want %d", len(record), p25.LduLength)
	}
}

func TestWriteP25LDU1StampsControlLC(t *testing.T) {
	e := newTestEndpoint(t)
	e.status = Running

	ctx := callctx.New(0x001234, 0x005678, true)
	ctx.ServiceOptions(0x80) // emergency

	var ldu p25.Ldu
	if err := e.WriteP25LDU1(ctx, &ldu); err != nil {
		t.Fatalf("WriteP25LDU1: %v", err)
	}

	lco, _, srcID, dstID, serviceOptions := p25.ExtractControlLC(&ldu)
	if lco != 0 {
		t.Errorf("lco = %d, want 0 for a group call", lco)
	}
	if srcID != ctx.SrcID || dstID != ctx.DstID {
		t.Errorf("srcID/dstID = %d/%d, want %d/%d", srcID, dstID, ctx.SrcID, ctx.DstID)
	}
	if serviceOptions != ctx.ServiceOptionsByte() {
		t.Errorf("serviceOptions = 0x%02x, want 0x%02x", serviceOptions, ctx.ServiceOptionsByte())
	}
}

func TestWriteP25LDU2StampsEncryptionSync(t *testing.T) {
	e := newTestEndpoint(t)
	e.status = Running

	ctx := callctx.New(0x001234, 0x005678, true)
	ctx.AlgID = 0x80
	ctx.KeyID = 0x1234
	copy(ctx.MessageIndicator[:], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})

	var ldu p25.Ldu
	if err := e.WriteP25LDU2(ctx, &ldu); err != nil {
		t.Fatalf("WriteP25LDU2: %v", err)
	}

	algID, keyID, mi := p25.ExtractEncryptionSync(&ldu)
	if algID != ctx.AlgID || keyID != ctx.KeyID {
		t.Errorf("algID/keyID = 0x%02x/0x%04x, want 0x%02x/0x%04x", algID, keyID, ctx.AlgID, ctx.KeyID)
	}
	if mi != ctx.MessageIndicator {
		t.Errorf("messageIndicator = %v, want %v", mi, ctx.MessageIndicator)
	}
}

func TestReadDMRAndReadP25EmptyQueues(t *testing.T) {
	e := newTestEndpoint(t)
	if _, ok := e.ReadDMR(); ok {
		t.Error("expected no DMR frame on empty queue")
	}
	if _, _, ok := e.ReadP25(); ok {
		t.Error("expected no P25 record on empty queue")
	}
}

func TestPadRightAndTruncate(t *testing.T) {
	if got := padRight("AB", 5); string(got) != "AB   " {
		t.Errorf("padRight = %q, want %q", got, "AB   ")
	}
	if got := truncate("ABCDEFG", 3); string(got) != "ABC" {
		t.Errorf("truncate = %q, want %q", got, "ABC")
	}
	if got := truncate("AB", 5); len(got) != 5 {
		t.Errorf("truncate short string should pad to width, got len %d", len(got))
	}
}
