package edac

import (
	"fmt"
	"testing"
)

func TestBPTC19696RoundTrip(t *testing.T) {
	payloads := [][]uint8{
		{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF, 0xFE, 0xDC, 0xBA, 0x98},
		{0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55},
		{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0, 0x11, 0x22, 0x33, 0x44},
	}

	for i, payload := range payloads {
		t.Run(fmt.Sprintf("payload_%d", i), func(t *testing.T) {
			bptc := NewBPTC19696()

			encoded, ok := bptc.Encode(payload)
			if !ok {
				t.Fatalf("encode failed")
			}
			if len(encoded) != bptcInputBytes {
				t.Fatalf("encoded length = %d, want %d", len(encoded), bptcInputBytes)
			}

			decoded, ok := bptc.Decode(encoded)
			if !ok {
				t.Fatalf("decode failed")
			}
			if len(decoded) != bptcInfoBytes {
				t.Fatalf("decoded length = %d, want %d", len(decoded), bptcInfoBytes)
			}

			for j := range payload {
				if payload[j] != decoded[j] {
					t.Errorf("byte %d: got 0x%02X, want 0x%02X", j, decoded[j], payload[j])
				}
			}
		})
	}
}

func TestBPTC19696SingleBitErrors(t *testing.T) {
	payload := []uint8{0x5A, 0xA5, 0x5A, 0xA5, 0x5A, 0xA5, 0x5A, 0xA5, 0x5A, 0xA5, 0x5A, 0xA5}

	encoded, ok := NewBPTC19696().Encode(payload)
	if !ok {
		t.Fatal("encode failed")
	}

	corrected, total := 0, 0
	for bytePos := range encoded {
		for bitPos := 0; bitPos < 8; bitPos++ {
			corrupted := append([]uint8(nil), encoded...)
			corrupted[bytePos] ^= 1 << bitPos
			total++

			decoded, ok := NewBPTC19696().Decode(corrupted)
			if !ok {
				continue
			}

			match := true
			for j := range payload {
				if payload[j] != decoded[j] {
					match = false
					break
				}
			}
			if match {
				corrected++
			}
		}
	}

	if corrected == 0 {
		t.Errorf("no single-bit error was corrected out of %d trials", total)
	}
}

func TestBPTC19696InterleavePermutation(t *testing.T) {
	used := make([]bool, bptcTotalBits)
	for i := 0; i < bptcTotalBits; i++ {
		j := (i * 181) % bptcTotalBits
		if used[j] {
			t.Fatalf("interleave collision at position %d", j)
		}
		used[j] = true
	}
	for i, wasUsed := range used {
		if !wasUsed {
			t.Errorf("position %d never targeted by the interleave permutation", i)
		}
	}
}

func TestBPTC19696EdgeCases(t *testing.T) {
	bptc := NewBPTC19696()

	if _, ok := bptc.Encode(nil); ok {
		t.Error("Encode should fail on nil input")
	}
	if _, ok := bptc.Decode(nil); ok {
		t.Error("Decode should fail on nil input")
	}
	if _, ok := bptc.Encode([]uint8{0x01, 0x02, 0x03}); ok {
		t.Error("Encode should fail on short input")
	}
	if _, ok := bptc.Decode([]uint8{0x01, 0x02, 0x03}); ok {
		t.Error("Decode should fail on short input")
	}
}
