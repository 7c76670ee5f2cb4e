package edac

import "testing"

func TestCRCCCITT16RoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x00, 0x00, 0x00, 0x00},
		{0xFF, 0xFF, 0xFF, 0xFF},
		{0x01, 0x23, 0x45, 0x67, 0x89},
		{0xDE, 0xAD, 0xBE, 0xEF},
	}

	for _, payload := range payloads {
		framed := AppendCCITT16(append([]byte(nil), payload...))
		if !CheckCCITT16(framed) {
			t.Errorf("payload %X: CRC did not validate after append", payload)
		}

		framed[0] ^= 0xFF
		if CheckCCITT16(framed) {
			t.Errorf("payload %X: corrupted frame validated", payload)
		}
	}
}

func TestCRCCCITT16ShortInput(t *testing.T) {
	if CheckCCITT16([]byte{0x01, 0x02}) {
		t.Error("CheckCCITT16 should reject input shorter than 3 bytes")
	}
}

func TestCRCCCITT16Deterministic(t *testing.T) {
	data := []byte("DMR-P25-TRANSCODE")
	if CalculateCCITT16(data) != CalculateCCITT16(data) {
		t.Error("CalculateCCITT16 must be deterministic")
	}
}
