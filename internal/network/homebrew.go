// Package network implements the Homebrew/MMDVM-family repeater protocol:
// a single UDP socket carrying tag-prefixed binary packets (RPTL/RPTK/RPTC/
// RPTPING/RPTCL, MSTNAK/MSTPONG/MSTCL/MSTACK, DMRD, P25D) and the link
// state machine that drives login, authentication, and configuration
// handshakes before steady-state frame relay begins.
package network

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log"
	"net"

	"github.com/dbehnke/dvmtranscode/internal/protocol/dmr"
	"github.com/dbehnke/dvmtranscode/internal/protocol/p25"
	"github.com/dbehnke/dvmtranscode/internal/transcode/callctx"
)

// LinkStatus is the Homebrew repeater login/auth state machine's state.
type LinkStatus int

const (
	WaitingConnect LinkStatus = iota
	WaitingLogin
	WaitingAuthorisation
	WaitingConfig
	Running
)

func (s LinkStatus) String() string {
	switch s {
	case WaitingConnect:
		return "WaitingConnect"
	case WaitingLogin:
		return "WaitingLogin"
	case WaitingAuthorisation:
		return "WaitingAuthorisation"
	case WaitingConfig:
		return "WaitingConfig"
	case Running:
		return "Running"
	default:
		return "Unknown"
	}
}

// Tag-prefixed packet magics.
const (
	tagLogin      = "RPTL"
	tagAuth       = "RPTK"
	tagConfig     = "RPTC"
	tagPing       = "RPTPING"
	tagClose      = "RPTCL"
	tagMasterNak  = "MSTNAK"
	tagMasterPong = "MSTPONG"
	tagMasterCl   = "MSTCL"
	tagMasterAck  = "MSTACK"
	tagDmrData    = "DMRD"
	tagP25Data    = "P25D"
)

const (
	retryIntervalMs = 5000
	timeoutMs       = 60000
)

// RepeaterConfig carries the RPTC configuration-packet fields. SoftwareID
// defaults to "TCD_DMR_P25" if left empty.
type RepeaterConfig struct {
	Identity    string
	RxFreqHz    uint64
	TxFreqHz    uint64
	Latitude    float64
	Longitude   float64
	HeightM     int
	Location    string
	TxOffsetMHz float64
	ChBwKHz     float64
	ChannelID   uint8
	ChannelNo   uint16
	PowerW      uint8
	SoftwareID  string
	Reconnect   int
}

// Endpoint is the network-facing surface DmrSlot and P25Call drive: one
// DMR frame or P25 record read per tick per protocol, and the emission
// calls each machine makes when it produces output.
type Endpoint interface {
	ReadDMR() (*dmr.Frame, bool)
	ReadP25() (record []byte, duid p25.Duid, ok bool)
	WriteDMR(f *dmr.Frame) error
	WriteP25LDU1(ctx *callctx.CallContext, ldu *p25.Ldu) error
	WriteP25LDU2(ctx *callctx.CallContext, ldu *p25.Ldu) error
	WriteP25TDU(ctx *callctx.CallContext) error
	Clock(ms int)
}

// HomebrewEndpoint is the concrete Endpoint: one UDP socket, one peer, the
// RPTL/RPTK/RPTC/RPTPING handshake, and DMRD/P25D frame relay.
type HomebrewEndpoint struct {
	peerID   uint32
	password string
	config   RepeaterConfig
	addr     *net.UDPAddr
	socket   *UDPSocket
	status   LinkStatus
	debug    bool

	salt [4]byte

	retryTimer   *Timer
	timeoutTimer *Timer
	pingTimer    *Timer

	recvBuf []byte

	dmrQueue []*dmr.Frame
	p25Queue []p25Queued

	dmrSeqNo byte
}

type p25Queued struct {
	record []byte
	duid   p25.Duid
}

// NewHomebrewEndpoint constructs an endpoint bound to a local port (0 for
// ephemeral) and targeting the given master address.
func NewHomebrewEndpoint(address string, port int, localPort int, peerID uint32, password string, cfg RepeaterConfig) (*HomebrewEndpoint, error) {
	addr, err := ParseUDPAddr(address, port)
	if err != nil {
		return nil, fmt.Errorf("resolve master address %s: %w", address, err)
	}
	if cfg.SoftwareID == "" {
		cfg.SoftwareID = "TCD_DMR_P25"
	}

	return &HomebrewEndpoint{
		peerID:       peerID,
		password:     password,
		config:       cfg,
		addr:         addr,
		socket:       NewUDPSocket("", localPort),
		status:       WaitingConnect,
		retryTimer:   NewTimer(1000, 0, retryIntervalMs),
		timeoutTimer: NewTimer(1000, 0, timeoutMs),
		pingTimer:    NewTimer(1000, 0, retryIntervalMs),
		recvBuf:      make([]byte, 1024),
	}, nil
}

// Open starts the login handshake.
func (e *HomebrewEndpoint) Open() error {
	if err := e.socket.Open(); err != nil {
		return err
	}
	e.writeLogin()
	e.status = WaitingLogin
	e.retryTimer.Start(0, retryIntervalMs)
	e.timeoutTimer.Start(0, timeoutMs)
	return nil
}

// Status reports the current link state.
func (e *HomebrewEndpoint) Status() LinkStatus { return e.status }

// Clock advances timers and drains the socket; the host loop calls it once
// per tick.
func (e *HomebrewEndpoint) Clock(ms int) {
	e.retryTimer.Clock(ms)
	e.timeoutTimer.Clock(ms)
	e.pingTimer.Clock(ms)

	if e.retryTimer.HasExpired() {
		e.retryTimer.Stop()
		e.onRetry()
		e.retryTimer.Start(0, retryIntervalMs)
	}

	if e.status == Running && e.pingTimer.HasExpired() {
		e.pingTimer.Stop()
		e.writePing()
		e.pingTimer.Start(0, retryIntervalMs)
	}

	if e.timeoutTimer.HasExpired() {
		e.timeoutTimer.Stop()
		log.Printf("homebrew: master connection timed out, reconnecting")
		e.status = WaitingConnect
	}

	e.drainSocket()
}

func (e *HomebrewEndpoint) onRetry() {
	switch e.status {
	case WaitingConnect:
		e.writeLogin()
		e.status = WaitingLogin
	case WaitingLogin:
		e.writeLogin()
	case WaitingAuthorisation:
		e.writeAuth()
	case WaitingConfig:
		e.writeConfig()
	}
}

func (e *HomebrewEndpoint) drainSocket() {
	for {
		n, from, err := e.socket.Read(e.recvBuf)
		if err != nil || n <= 0 {
			return
		}
		if e.addr != nil && from != nil && !from.IP.Equal(e.addr.IP) {
			continue
		}
		e.handlePacket(e.recvBuf[:n])
	}
}

func (e *HomebrewEndpoint) handlePacket(packet []byte) {
	switch {
	case len(packet) >= 6 && string(packet[:6]) == tagMasterNak:
		e.handleNak()
	case len(packet) >= 7 && string(packet[:7]) == tagMasterPong:
		e.timeoutTimer.Start(0, timeoutMs)
	case len(packet) >= 5 && string(packet[:5]) == tagMasterCl:
		e.status = WaitingConnect
	case len(packet) >= 6 && string(packet[:6]) == tagMasterAck:
		e.handleAck(packet)
	case len(packet) >= 4 && string(packet[:4]) == tagDmrData:
		e.handleDmrd(packet)
	case len(packet) >= 4 && string(packet[:4]) == tagP25Data:
		e.handleP25d(packet)
	}
}

// handleNak reacts to an MSTNAK: a NAK received while
// Running is treated as a transient login hiccup and only downgrades the
// link back to WaitingLogin for a fresh RPTL/RPTK handshake. A NAK
// received at any earlier stage (WaitingAuthorisation/WaitingConfig means
// the master rejected something about the in-flight handshake itself, so
// the link is reset all the way back to WaitingConnect and the next
// onRetry tick starts over with a fresh RPTL.
func (e *HomebrewEndpoint) handleNak() {
	if e.status == Running {
		e.status = WaitingLogin
		e.retryTimer.Start(0, retryIntervalMs)
		return
	}
	e.status = WaitingConnect
	e.retryTimer.Start(0, retryIntervalMs)
}

func (e *HomebrewEndpoint) handleAck(packet []byte) {
	switch e.status {
	case WaitingLogin:
		if len(packet) >= 10 {
			copy(e.salt[:], packet[6:10])
		}
		e.writeAuth()
		e.status = WaitingAuthorisation
	case WaitingAuthorisation:
		e.writeConfig()
		e.status = WaitingConfig
	case WaitingConfig:
		e.status = Running
		e.timeoutTimer.Start(0, timeoutMs)
		e.pingTimer.Start(0, retryIntervalMs)
	}
}

func (e *HomebrewEndpoint) write(packet []byte) {
	if err := e.socket.Write(packet, e.addr); err != nil {
		log.Printf("homebrew: write error: %v", err)
	}
}

func (e *HomebrewEndpoint) writeLogin() {
	packet := make([]byte, 8)
	copy(packet[0:4], tagLogin)
	binary.BigEndian.PutUint32(packet[4:8], e.peerID)
	e.write(packet)
}

func (e *HomebrewEndpoint) writeAuth() {
	h := sha256.New()
	h.Write(e.salt[:])
	h.Write([]byte(e.password))
	sum := h.Sum(nil)

	packet := make([]byte, 40)
	copy(packet[0:4], tagAuth)
	binary.BigEndian.PutUint32(packet[4:8], e.peerID)
	copy(packet[8:40], sum)
	e.write(packet)
}

func (e *HomebrewEndpoint) writeConfig() {
	e.write(e.buildConfigPacket())
}

// buildConfigPacket builds the 168-byte RPTC packet: identity, frequencies,
// site info, software ID and reconnect count as fixed-width ASCII fields.
func (e *HomebrewEndpoint) buildConfigPacket() []byte {
	packet := make([]byte, 168)
	copy(packet[0:4], tagConfig)
	binary.BigEndian.PutUint32(packet[4:8], e.peerID)

	body := packet[8:]
	c := e.config

	identity := c.Identity
	if len(identity) > 8 {
		identity = identity[:8]
	}
	copy(body[0:8], padRight(identity, 8))

	copy(body[8:17], fmt.Sprintf("%09d", c.RxFreqHz))
	copy(body[17:26], fmt.Sprintf("%09d", c.TxFreqHz))
	copy(body[26:34], truncate(fmt.Sprintf("%08f", c.Latitude), 8))
	copy(body[34:43], truncate(fmt.Sprintf("%09f", c.Longitude), 9))
	copy(body[43:46], fmt.Sprintf("%03d", c.HeightM))
	copy(body[46:66], padRight(c.Location, 20))
	copy(body[66:71], truncate(fmt.Sprintf("%02.02f", c.TxOffsetMHz), 5))
	copy(body[71:76], truncate(fmt.Sprintf("%.1f", c.ChBwKHz), 5))
	copy(body[76:79], fmt.Sprintf("%03d", c.ChannelID))
	copy(body[79:83], fmt.Sprintf("%04d", c.ChannelNo))
	copy(body[83:85], fmt.Sprintf("%02d", c.PowerW))
	copy(body[85:101], padRight(c.SoftwareID, 16))
	copy(body[101:106], fmt.Sprintf("%05d", c.Reconnect))

	return packet
}

func (e *HomebrewEndpoint) writePing() {
	packet := make([]byte, 11)
	copy(packet[0:7], tagPing)
	binary.BigEndian.PutUint32(packet[7:11], e.peerID)
	e.write(packet)
}

// Close sends RPTCL and releases the socket.
func (e *HomebrewEndpoint) Close() {
	if e.status == Running {
		packet := make([]byte, 9)
		copy(packet[0:5], tagClose)
		binary.BigEndian.PutUint32(packet[5:9], e.peerID)
		e.write(packet)
	}
	e.socket.Close()
	e.status = WaitingConnect
}

func padRight(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	for i := len(s); i < n; i++ {
		b[i] = ' '
	}
	return b
}

func truncate(s string, n int) []byte {
	if len(s) > n {
		s = s[:n]
	}
	b := make([]byte, n)
	copy(b, s)
	return b
}

const dmrdPacketLength = 55

func (e *HomebrewEndpoint) handleDmrd(packet []byte) {
	if len(packet) != dmrdPacketLength {
		return
	}

	f := &dmr.Frame{}
	f.SeqNo = packet[4]
	f.SrcID = uint32(packet[5])<<16 | uint32(packet[6])<<8 | uint32(packet[7])
	f.DstID = uint32(packet[8])<<16 | uint32(packet[9])<<8 | uint32(packet[10])

	flags := packet[15]
	if flags&0x80 != 0 {
		f.SlotNo = 2
	} else {
		f.SlotNo = 1
	}
	if flags&0x40 != 0 {
		f.Flco = dmr.FlcoPrivate
	} else {
		f.Flco = dmr.FlcoGroup
	}

	voiceSync := flags&0x10 != 0
	dataSync := flags&0x20 != 0
	n := flags & 0x0F
	switch {
	case voiceSync:
		f.DataType = dmr.VoiceSync
	case dataSync && n == 1:
		f.DataType = dmr.VoiceLcHeader
	case dataSync && n == 2:
		f.DataType = dmr.TerminatorWithLc
	default:
		f.DataType = dmr.Voice
	}
	f.N = n
	copy(f.Payload[:], packet[20:53])

	e.dmrQueue = append(e.dmrQueue, f)
}

// WriteDMR encodes and sends one DMR burst as a DMRD packet.
func (e *HomebrewEndpoint) WriteDMR(f *dmr.Frame) error {
	if e.status != Running {
		return nil
	}

	packet := make([]byte, dmrdPacketLength)
	copy(packet[0:4], tagDmrData)
	packet[4] = e.dmrSeqNo
	e.dmrSeqNo++

	packet[5] = byte(f.SrcID >> 16)
	packet[6] = byte(f.SrcID >> 8)
	packet[7] = byte(f.SrcID)
	packet[8] = byte(f.DstID >> 16)
	packet[9] = byte(f.DstID >> 8)
	packet[10] = byte(f.DstID)
	binary.BigEndian.PutUint32(packet[11:15], e.peerID)

	var flags byte
	if f.SlotNo == 2 {
		flags |= 0x80
	}
	if f.Flco == dmr.FlcoPrivate {
		flags |= 0x40
	}
	switch f.DataType {
	case dmr.VoiceSync:
		flags |= 0x10
		flags |= f.N & 0x0F
	case dmr.VoiceLcHeader:
		flags |= 0x20
		flags |= 1
	case dmr.TerminatorWithLc:
		flags |= 0x20
		flags |= 2
	default:
		flags |= f.N & 0x0F
	}
	packet[15] = flags

	copy(packet[20:53], f.Payload[:])

	e.write(packet)
	if f.DataType == dmr.VoiceLcHeader {
		// Voice LC headers are sent twice so one lost datagram doesn't
		// cost the whole call its addressing.
		e.write(packet)
	}
	return nil
}

// ReadDMR pops the oldest queued DMR frame, if any.
func (e *HomebrewEndpoint) ReadDMR() (*dmr.Frame, bool) {
	if len(e.dmrQueue) == 0 {
		return nil, false
	}
	f := e.dmrQueue[0]
	e.dmrQueue = e.dmrQueue[1:]
	return f, true
}

func (e *HomebrewEndpoint) handleP25d(packet []byte) {
	if len(packet) < 5 {
		return
	}
	duid := p25.Duid(packet[4])
	record := append([]byte(nil), packet[5:]...)
	e.p25Queue = append(e.p25Queue, p25Queued{record: record, duid: duid})
}

// ReadP25 pops the oldest queued P25 record, if any.
func (e *HomebrewEndpoint) ReadP25() ([]byte, p25.Duid, bool) {
	if len(e.p25Queue) == 0 {
		return nil, 0, false
	}
	q := e.p25Queue[0]
	e.p25Queue = e.p25Queue[1:]
	return q.record, q.duid, true
}

func (e *HomebrewEndpoint) writeP25Ldu(duid p25.Duid, ldu *p25.Ldu, ldu2 bool) error {
	if e.status != Running {
		return nil
	}
	// Stamp the magic-byte prefix sequence into the LDU buffer at the
	// fixed record offsets before serializing, mirroring how
	// ParseNetworkRecord validates it on receive.
	base := byte(0x62)
	if ldu2 {
		base += 9
	}
	offsets := [9]int{0, 22, 36, 53, 70, 87, 104, 121, 138}
	for i, off := range offsets {
		ldu[off] = base + byte(i)
	}

	packet := make([]byte, 5+p25.LduLength)
	copy(packet[0:4], tagP25Data)
	packet[4] = byte(duid)
	copy(packet[5:], ldu[:])
	e.write(packet)
	return nil
}

// WriteP25LDU1 sends an LDU1 record, stamping ctx's call metadata into the
// buffer's control-LC region so the DMR-to-P25 direction preserves
// src/dst/group addressing.
func (e *HomebrewEndpoint) WriteP25LDU1(ctx *callctx.CallContext, ldu *p25.Ldu) error {
	lco := uint8(0)
	if !ctx.Group {
		lco = 1
	}
	p25.InjectControlLC(ldu, lco, 0, ctx.SrcID, ctx.DstID, ctx.ServiceOptionsByte())
	return e.writeP25Ldu(p25.DuidLdu1, ldu, false)
}

// WriteP25LDU2 sends an LDU2 record, stamping ctx's encryption-sync fields
// into the buffer, the inverse of ExtractEncryptionSync.
func (e *HomebrewEndpoint) WriteP25LDU2(ctx *callctx.CallContext, ldu *p25.Ldu) error {
	p25.InjectEncryptionSync(ldu, ctx.AlgID, ctx.KeyID, ctx.MessageIndicator)
	return e.writeP25Ldu(p25.DuidLdu2, ldu, true)
}

// WriteP25TDU sends a terminator record. ctx is accepted for interface
// symmetry with WriteP25LDU1/2 but carries no payload bytes on the wire.
func (e *HomebrewEndpoint) WriteP25TDU(ctx *callctx.CallContext) error {
	if e.status != Running {
		return nil
	}
	packet := make([]byte, 5)
	copy(packet[0:4], tagP25Data)
	packet[4] = byte(p25.DuidTdu)
	e.write(packet)
	return nil
}

var _ Endpoint = (*HomebrewEndpoint)(nil)
