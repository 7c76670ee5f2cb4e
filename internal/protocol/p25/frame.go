// Package p25 implements the P25-side frame model and the bit-level frame
// packer used by the transcoding core: a 225-byte LDU record in, nine
// 11-byte IMBE codewords out, and the reverse, plus the network-record to
// LDU-buffer extraction step.
package p25

import "fmt"

// Duid enumerates the P25 Data Unit ID values the transcoder cares about.
type Duid uint8

const (
	DuidHdu Duid = iota
	DuidLdu1
	DuidLdu2
	DuidTdu
	DuidTdulc
	DuidTsdu
	DuidPdu
)

func (d Duid) String() string {
	switch d {
	case DuidHdu:
		return "HDU"
	case DuidLdu1:
		return "LDU1"
	case DuidLdu2:
		return "LDU2"
	case DuidTdu:
		return "TDU"
	case DuidTdulc:
		return "TDULC"
	case DuidTsdu:
		return "TSDU"
	case DuidPdu:
		return "PDU"
	default:
		return fmt.Sprintf("Duid(%d)", uint8(d))
	}
}

// LduLength is the size in bytes of one P25 LDU1/LDU2 slotted buffer.
const LduLength = 225

// ImbeLength is the size in bytes of one IMBE codeword.
const ImbeLength = 11

// Ldu is one 225-byte P25 logical data unit buffer (LDU1 or LDU2), holding
// nine IMBE codewords plus the surrounding LC/encryption-sync hexbits.
type Ldu [LduLength]byte

// imbeOffsets is the fixed table of IMBE codeword start offsets within one
// 225-byte LDU buffer.
var imbeOffsets = [9]int{10, 26, 55, 80, 105, 130, 155, 180, 204}

// ExtractImbe returns the n'th (0..8) IMBE codeword from an LDU buffer. The
// LC / encryption-sync bits surrounding the voice are left untouched.
func ExtractImbe(ldu *Ldu, n int) [ImbeLength]byte {
	var cw [ImbeLength]byte
	off := imbeOffsets[n]
	copy(cw[:], ldu[off:off+ImbeLength])
	return cw
}

// InjectImbe places one IMBE codeword into the n'th (0..8) slot of an LDU
// buffer, leaving all other bytes untouched.
func InjectImbe(ldu *Ldu, n int, cw [ImbeLength]byte) {
	off := imbeOffsets[n]
	copy(ldu[off:off+ImbeLength], cw[:])
}

// IsImbeSilent reports whether the IMBE codeword at slot n reads as all-zero
// at its prefix byte, the signal that the codeword was lost in transit.
func IsImbeSilent(ldu *Ldu, n int) bool {
	off := imbeOffsets[n]
	return ldu[off] == 0
}

// recordOffsets/recordWidths are the fixed per-voice-slot offsets and widths
// used when copying an incoming network record into an LDU buffer.
var (
	recordOffsets = [9]int{0, 22, 36, 53, 70, 87, 104, 121, 138}
	recordWidths  = [9]int{22, 14, 17, 17, 17, 17, 17, 17, 16}
)

// magicBase is the first valid magic byte for LDU1 records; LDU2 records
// use magicBase+9 as their base. Valid prefixes span 0x62-0x6A (LDU1) and
// 0x6B-0x73 (LDU2).
const magicBase = 0x62

// ValidateRecordPrefix checks that the magic byte at each of the nine fixed
// record offsets is present and in sequence for the given voice slot
// (ldu2 selects the LDU2 magic range). It returns false on the first
// mismatch; one bad prefix byte rejects the whole record.
func ValidateRecordPrefix(record []byte, ldu2 bool) bool {
	base := magicBase
	if ldu2 {
		base += 9
	}
	for i, off := range recordOffsets {
		if off >= len(record) {
			return false
		}
		if record[off] != byte(base+i) {
			return false
		}
	}
	return true
}

// ParseNetworkRecord validates an incoming P25 network record's magic-byte
// prefix sequence and, if valid, copies its byte-aligned windows into an LDU
// buffer at the fixed offsets, followed by the bytes past the last window
// (which carry IMBE slots 6-8), returning true. On a prefix mismatch it
// returns false and leaves ldu untouched; the caller increments its error
// counter and proceeds as if the packet were lost.
func ParseNetworkRecord(record []byte, ldu2 bool, ldu *Ldu) bool {
	if !ValidateRecordPrefix(record, ldu2) {
		return false
	}
	for i, off := range recordOffsets {
		width := recordWidths[i]
		if off+width > len(record) || off+width > LduLength {
			return false
		}
		copy(ldu[off:off+width], record[off:off+width])
	}
	tail := recordOffsets[len(recordOffsets)-1] + recordWidths[len(recordWidths)-1]
	copy(ldu[tail:], record[tail:])
	return true
}

// Encryption sync field offsets within an LDU2 buffer.
const (
	algIDOffset = 126
	keyIDOffset = 127
)

// miChunkOffsets are the three 3-byte chunks the 9-byte message_indicator
// is gathered from within an LDU2 buffer. The first chunk starts at 50
// (bytes 50-52) so it stays clear of recordOffsets' magic-prefix byte at
// 53, which writeP25Ldu stamps over every outgoing record.
var miChunkOffsets = [3]int{50, 76, 101}

// ExtractEncryptionSync reads the alg_id, key_id and message_indicator
// fields carried in an LDU2 buffer. These update CallContext but do not
// affect voice routing.
func ExtractEncryptionSync(ldu2 *Ldu) (algID uint8, keyID uint16, messageIndicator [9]byte) {
	algID = ldu2[algIDOffset]
	keyID = uint16(ldu2[keyIDOffset])<<8 | uint16(ldu2[keyIDOffset+1])
	for i, off := range miChunkOffsets {
		copy(messageIndicator[i*3:i*3+3], ldu2[off:off+3])
	}
	return algID, keyID, messageIndicator
}

// InjectEncryptionSync writes the alg_id, key_id and message_indicator
// fields into an LDU2 buffer's encryption-sync region, the inverse of
// ExtractEncryptionSync. Used when the DMR-to-P25 path synthesizes an LDU2.
func InjectEncryptionSync(ldu2 *Ldu, algID uint8, keyID uint16, messageIndicator [9]byte) {
	ldu2[algIDOffset] = algID
	ldu2[keyIDOffset] = byte(keyID >> 8)
	ldu2[keyIDOffset+1] = byte(keyID)
	for i, off := range miChunkOffsets {
		copy(ldu2[off:off+3], messageIndicator[i*3:i*3+3])
	}
}

// Control LC field offsets within an LDU1 buffer. These sit in the
// non-IMBE byte gap between IMBE slots 1 and 2 (0-based; bytes 38-52); offset
// 53 itself is one of recordOffsets' magic-prefix bytes and is avoided so
// ParseNetworkRecord's validation byte never aliases a control-LC field.
const (
	lcoOffset            = 38
	mfIDOffset           = 39
	controlSrcIDOffset   = 40
	controlDstIDOffset   = 43
	serviceOptionsOffset = 46
)

// ExtractControlLC reads the LCO, MFId, src_id, dst_id and service-options
// byte carried in an LDU1 buffer. The service-options byte itself is
// returned unexpanded; decode it with CallContext.ServiceOptions.
func ExtractControlLC(ldu1 *Ldu) (lco, mfID uint8, srcID, dstID uint32, serviceOptions byte) {
	lco = ldu1[lcoOffset]
	mfID = ldu1[mfIDOffset]
	srcID = uint32(ldu1[controlSrcIDOffset])<<16 | uint32(ldu1[controlSrcIDOffset+1])<<8 | uint32(ldu1[controlSrcIDOffset+2])
	dstID = uint32(ldu1[controlDstIDOffset])<<16 | uint32(ldu1[controlDstIDOffset+1])<<8 | uint32(ldu1[controlDstIDOffset+2])
	serviceOptions = ldu1[serviceOptionsOffset]
	return lco, mfID, srcID, dstID, serviceOptions
}

// InjectControlLC writes the LCO, MFId, src_id, dst_id and service-options
// fields into an LDU1 buffer's control-LC region, the inverse of
// ExtractControlLC. Used when the DMR-to-P25 path synthesizes an LDU1.
func InjectControlLC(ldu1 *Ldu, lco, mfID uint8, srcID, dstID uint32, serviceOptions byte) {
	ldu1[lcoOffset] = lco
	ldu1[mfIDOffset] = mfID
	ldu1[controlSrcIDOffset] = byte(srcID >> 16)
	ldu1[controlSrcIDOffset+1] = byte(srcID >> 8)
	ldu1[controlSrcIDOffset+2] = byte(srcID)
	ldu1[controlDstIDOffset] = byte(dstID >> 16)
	ldu1[controlDstIDOffset+1] = byte(dstID >> 8)
	ldu1[controlDstIDOffset+2] = byte(dstID)
	ldu1[serviceOptionsOffset] = serviceOptions
}
