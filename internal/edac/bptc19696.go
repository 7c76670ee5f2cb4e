package edac

// BPTC(196,96): Block Product Turbo Code protecting DMR Full Link Control
// (the content carried in DT_VOICE_LC_HEADER and DT_TERMINATOR_WITH_LC
// bursts). 96 information bits arranged as a 13x15 matrix, protected by a
// Hamming(15,11,3) code across each of the 9 data rows and a Hamming(13,9,3)
// code down each of the 15 columns, then interleaved with the (a*181)%196
// permutation before transmission.

const (
	bptcTotalBits  = 196
	bptcInfoBits   = 96
	bptcInputBytes = 33 // packed codeword
	bptcInfoBytes  = 12 // packed payload (Full LC is 9 bytes + CRC in practice, padded to 12 here)
	bptcMatrixCols = 15
	bptcDataRows   = 9
	bptcMaxIter    = 5
)

// bptcDataBitRanges gives the inclusive matrix-bit positions, in encode/decode
// order, that carry the 96 information bits (positions 0-3, 12-15, etc. are
// parity-only and skipped).
var bptcDataBitRanges = [][2]int{
	{4, 11}, {16, 26}, {31, 41}, {46, 56}, {61, 71}, {76, 86}, {91, 101}, {106, 116}, {121, 131},
}

// BPTC19696 holds the scratch matrices for one encode or decode operation.
// Not safe for concurrent use; callers construct one per call.
type BPTC19696 struct {
	raw      [bptcTotalBits]bool
	deInterD [bptcTotalBits]bool
}

// NewBPTC19696 returns a ready-to-use encoder/decoder.
func NewBPTC19696() *BPTC19696 {
	return &BPTC19696{}
}

// Decode unpacks a 33-byte BPTC codeword, corrects row/column errors, and
// returns the 12-byte payload it carries.
func (b *BPTC19696) Decode(input []uint8) ([]uint8, bool) {
	if len(input) < bptcInputBytes {
		return nil, false
	}

	output := make([]uint8, bptcInfoBytes)

	b.decodeExtractBinary(input)
	b.decodeDeInterleave()
	b.decodeErrorCheck()
	b.decodeExtractData(output)

	return output, true
}

// Encode packs a 12-byte payload into a protected, interleaved 33-byte
// codeword.
func (b *BPTC19696) Encode(payload []uint8) ([]uint8, bool) {
	if len(payload) < bptcInfoBytes {
		return nil, false
	}

	output := make([]uint8, bptcInputBytes)

	b.encodeExtractData(payload)
	b.encodeErrorCheck()
	b.encodeInterleave()
	b.encodeExtractBinary(output)

	return output, true
}

func (b *BPTC19696) decodeExtractBinary(input []uint8) {
	for i := range b.raw {
		b.raw[i] = false
	}

	for i := 0; i < 13; i++ {
		ByteToBitsBE(input[i], b.raw[i*8:(i+1)*8])
	}

	var temp [8]bool
	ByteToBitsBE(input[20], temp[:])
	b.raw[98] = temp[6]
	b.raw[99] = temp[7]

	for i := 0; i < 12; i++ {
		ByteToBitsBE(input[21+i], b.raw[100+i*8:108+i*8])
	}
}

func (b *BPTC19696) decodeDeInterleave() {
	for i := range b.deInterD {
		b.deInterD[i] = false
	}
	for a := 0; a < bptcTotalBits; a++ {
		b.deInterD[a] = b.raw[(a*181)%bptcTotalBits]
	}
}

func (b *BPTC19696) decodeErrorCheck() {
	for iter := 0; iter < bptcMaxIter; iter++ {
		fixing := false

		var col [13]bool
		for c := 0; c < bptcMatrixCols; c++ {
			pos := c + 1
			for a := 0; a < 13; a++ {
				if pos < bptcTotalBits {
					col[a] = b.deInterD[pos]
				} else {
					col[a] = false
				}
				pos += bptcMatrixCols
			}

			if Decode1393(col[:]) {
				pos = c + 1
				for a := 0; a < 13; a++ {
					if pos < bptcTotalBits {
						b.deInterD[pos] = col[a]
					}
					pos += bptcMatrixCols
				}
				fixing = true
			}
		}

		for r := 0; r < bptcDataRows; r++ {
			pos := (r * bptcMatrixCols) + 1
			if pos+bptcMatrixCols <= bptcTotalBits {
				if Decode15113(b.deInterD[pos : pos+bptcMatrixCols]) {
					fixing = true
				}
			}
		}

		if !fixing {
			break
		}
	}
}

func (b *BPTC19696) decodeExtractData(output []uint8) {
	var bits [bptcInfoBits]bool
	pos := 0

	for _, r := range bptcDataBitRanges {
		for a := r[0]; a <= r[1] && pos < bptcInfoBits; a++ {
			bits[pos] = b.deInterD[a]
			pos++
		}
	}

	for i := 0; i < bptcInfoBytes && i*8 < bptcInfoBits; i++ {
		output[i] = BitsToByteBE(bits[i*8 : (i+1)*8])
	}
}

func (b *BPTC19696) encodeExtractData(payload []uint8) {
	var bits [bptcInfoBits]bool
	for i := 0; i < bptcInfoBytes && i*8 < bptcInfoBits; i++ {
		ByteToBitsBE(payload[i], bits[i*8:(i+1)*8])
	}

	for i := range b.deInterD {
		b.deInterD[i] = false
	}

	pos := 0
	for _, r := range bptcDataBitRanges {
		for a := r[0]; a <= r[1] && pos < bptcInfoBits; a++ {
			b.deInterD[a] = bits[pos]
			pos++
		}
	}
}

func (b *BPTC19696) encodeErrorCheck() {
	for r := 0; r < bptcDataRows; r++ {
		pos := (r * bptcMatrixCols) + 1
		if pos+bptcMatrixCols <= bptcTotalBits {
			Encode15113(b.deInterD[pos : pos+bptcMatrixCols])
		}
	}

	var col [13]bool
	for c := 0; c < bptcMatrixCols; c++ {
		pos := c + 1
		for a := 0; a < 13; a++ {
			if pos < bptcTotalBits {
				col[a] = b.deInterD[pos]
			} else {
				col[a] = false
			}
			pos += bptcMatrixCols
		}

		Encode1393(col[:])

		pos = c + 1
		for a := 0; a < 13; a++ {
			if pos < bptcTotalBits {
				b.deInterD[pos] = col[a]
			}
			pos += bptcMatrixCols
		}
	}
}

func (b *BPTC19696) encodeInterleave() {
	for i := range b.raw {
		b.raw[i] = false
	}
	for a := 0; a < bptcTotalBits; a++ {
		b.raw[(a*181)%bptcTotalBits] = b.deInterD[a]
	}
}

func (b *BPTC19696) encodeExtractBinary(output []uint8) {
	for i := range output {
		output[i] = 0
	}

	for i := 0; i < 13; i++ {
		output[i] = BitsToByteBE(b.raw[i*8 : (i+1)*8])
	}

	tempByte := BitsToByteBE(b.raw[96:104])
	output[12] = (output[12] & 0x3F) | (tempByte & 0xC0)
	output[20] = (output[20] & 0xFC) | ((tempByte >> 4) & 0x03)

	for i := 0; i < 12; i++ {
		startBit := 100 + i*8
		output[21+i] = BitsToByteBE(b.raw[startBit : startBit+8])
	}
}
