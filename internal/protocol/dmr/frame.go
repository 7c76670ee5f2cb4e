// Package dmr implements the DMR-side frame model and bit-level frame
// packer used by the transcoding core: a 33-byte DMR payload in, three
// 9-byte AMBE+2 codewords out, and the reverse.
package dmr

import (
	"fmt"

	"github.com/dbehnke/dvmtranscode/internal/edac"
)

// DataType enumerates the DMR burst types the transcoder cares about.
type DataType uint8

const (
	Voice DataType = iota
	VoiceSync
	VoiceLcHeader
	TerminatorWithLc
)

func (t DataType) String() string {
	switch t {
	case Voice:
		return "Voice"
	case VoiceSync:
		return "VoiceSync"
	case VoiceLcHeader:
		return "VoiceLcHeader"
	case TerminatorWithLc:
		return "TerminatorWithLc"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(t))
	}
}

// Flco is the DMR Full Link Control Opcode distinguishing group calls from
// private (unit-to-unit) calls.
type Flco uint8

const (
	FlcoGroup Flco = iota
	FlcoPrivate
)

// PayloadLength is the size in bytes of one DMR burst payload.
const PayloadLength = 33

// Frame is one DMR network frame: a burst payload plus the header fields
// the slot machine and network layer need.
type Frame struct {
	SlotNo   uint8 // 1 or 2
	DataType DataType
	SeqNo    uint8 // monotone per burst stream
	N        uint8 // SeqNo mod 6
	Flco     Flco
	SrcID    uint32 // 24-bit
	DstID    uint32 // 24-bit
	Payload  [PayloadLength]byte
}

func (f *Frame) String() string {
	call := "Group"
	if f.Flco == FlcoPrivate {
		call = "Private"
	}
	return fmt.Sprintf("DMR{slot=%d %s %s src=%d dst=%d seq=%d n=%d}",
		f.SlotNo, f.DataType, call, f.SrcID, f.DstID, f.SeqNo, f.N)
}

// IsVoiceSync reports whether this frame should trigger Idle->Audio entry.
func (f *Frame) IsVoiceSync() bool { return f.DataType == VoiceSync }

// IsTerminator reports whether this frame ends a call.
func (f *Frame) IsTerminator() bool { return f.DataType == TerminatorWithLc }

// embeddedOffset is where the single embedded-signalling byte the packer
// preserves lives within the 33-byte payload; the remaining bytes of the
// embedded/sync region (payload[10:15]) are not voice-bearing and are
// zeroed by Join.
const embeddedOffset = 9

const (
	ambe0Offset = 0
	ambe1Offset = 15
	ambe2Offset = 24
	ambeLen     = 9
)

// SplitAmbe extracts the three 9-byte AMBE+2 codewords packed into a DMR
// burst payload. The embedded-signalling/sync region between them is
// skipped; fetch it separately with EmbeddedByte.
func SplitAmbe(payload [PayloadLength]byte) [3][ambeLen]byte {
	var frames [3][ambeLen]byte
	copy(frames[0][:], payload[ambe0Offset:ambe0Offset+ambeLen])
	copy(frames[1][:], payload[ambe1Offset:ambe1Offset+ambeLen])
	copy(frames[2][:], payload[ambe2Offset:ambe2Offset+ambeLen])
	return frames
}

// EmbeddedByte returns the single embedded-signalling byte (EMB nibbles)
// carried between the first and second AMBE codewords.
func EmbeddedByte(payload [PayloadLength]byte) byte {
	return payload[embeddedOffset]
}

// JoinAmbe packs three AMBE+2 codewords and one embedded-signalling byte
// back into a 33-byte DMR burst payload. Bytes in the embedded/sync region
// not covered by embedded are zeroed.
func JoinAmbe(frames [3][ambeLen]byte, embedded byte) [PayloadLength]byte {
	var payload [PayloadLength]byte
	copy(payload[ambe0Offset:ambe0Offset+ambeLen], frames[0][:])
	payload[embeddedOffset] = embedded
	copy(payload[ambe1Offset:ambe1Offset+ambeLen], frames[1][:])
	copy(payload[ambe2Offset:ambe2Offset+ambeLen], frames[2][:])
	return payload
}

// FullLC is the 9-byte DMR Full Link Control payload carried, BPTC(196,96)-
// protected, in a VoiceLcHeader or TerminatorWithLc burst's payload in
// place of AMBE voice.
type FullLC struct {
	FLCO           Flco
	FID            byte
	ServiceOptions byte
	DstID          uint32 // 24-bit
	SrcID          uint32 // 24-bit
}

const fullLCLength = 9
const fullLCProtectedLength = fullLCLength + 2 // + CRC-CCITT16

func (lc FullLC) bytes() []byte {
	b := make([]byte, fullLCLength)
	b[0] = byte(lc.FLCO)
	b[1] = lc.FID
	b[2] = lc.ServiceOptions
	b[3] = byte(lc.DstID >> 16)
	b[4] = byte(lc.DstID >> 8)
	b[5] = byte(lc.DstID)
	b[6] = byte(lc.SrcID >> 16)
	b[7] = byte(lc.SrcID >> 8)
	b[8] = byte(lc.SrcID)
	return b
}

func fullLCFromBytes(b []byte) FullLC {
	return FullLC{
		FLCO:           Flco(b[0]),
		FID:            b[1],
		ServiceOptions: b[2],
		DstID:          uint32(b[3])<<16 | uint32(b[4])<<8 | uint32(b[5]),
		SrcID:          uint32(b[6])<<16 | uint32(b[7])<<8 | uint32(b[8]),
	}
}

// EncodeFullLC CRC-protects and BPTC(196,96)-encodes a Full LC payload into
// the 33-byte burst payload a VoiceLcHeader/TerminatorWithLc frame carries.
func EncodeFullLC(lc FullLC) [PayloadLength]byte {
	protected := edac.AppendCCITT16(lc.bytes()) // 11 bytes
	padded := make([]byte, 12)
	copy(padded, protected)

	codeword, _ := edac.NewBPTC19696().Encode(padded)

	var payload [PayloadLength]byte
	copy(payload[:], codeword)
	return payload
}

// DecodeFullLC reverses EncodeFullLC, reporting whether BPTC correction and
// the CRC both validated.
func DecodeFullLC(payload [PayloadLength]byte) (FullLC, bool) {
	decoded, ok := edac.NewBPTC19696().Decode(payload[:])
	if !ok {
		return FullLC{}, false
	}
	if !edac.CheckCCITT16(decoded[:fullLCProtectedLength]) {
		return FullLC{}, false
	}
	return fullLCFromBytes(decoded[:fullLCLength]), true
}
