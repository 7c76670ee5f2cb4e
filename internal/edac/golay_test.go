package edac

import "testing"

func TestGolay2087RoundTrip(t *testing.T) {
	for _, val := range []byte{0x00, 0xFF, 0xAA, 0x55, 0x13, 0x7C} {
		data := []byte{val, 0x00, 0x00}
		if err := Golay2087Encode(data); err != nil {
			t.Fatalf("encode: %v", err)
		}
		if errs := Golay2087Decode(append([]byte(nil), data...)); errs != 0 {
			t.Errorf("val 0x%02X: clean codeword reported %d errors", val, errs)
		}
	}
}

func TestGolay2087SingleBitCorrection(t *testing.T) {
	data := []byte{0x5A, 0x00, 0x00}
	if err := Golay2087Encode(data); err != nil {
		t.Fatalf("encode: %v", err)
	}

	for bit := 0; bit < 20; bit++ {
		corrupted := append([]byte(nil), data...)
		bytePos, bitPos := bit/8, 7-(bit%8)
		corrupted[bytePos] ^= 1 << uint(bitPos)

		errs := Golay2087Decode(corrupted)
		if errs == 0 || errs == 0xFF {
			t.Errorf("bit %d: expected a corrected single-bit error, got errs=%d", bit, errs)
			continue
		}
		if corrupted[0] != data[0] {
			t.Errorf("bit %d: data byte not restored: got 0x%02X, want 0x%02X", bit, corrupted[0], data[0])
		}
	}
}

func TestGolay24128RoundTrip(t *testing.T) {
	for _, val := range []uint16{0x000, 0xFFF, 0x0AA, 0x155, 0x3C3} {
		data := []byte{byte(val >> 4), byte(val<<4) & 0xF0, 0x00}
		if err := Golay24128Encode(data); err != nil {
			t.Fatalf("encode: %v", err)
		}
		if errs := Golay24128Decode(append([]byte(nil), data...)); errs != 0 {
			t.Errorf("val 0x%03X: clean codeword reported %d errors", val, errs)
		}
	}
}

func TestGolay24128SingleBitCorrection(t *testing.T) {
	data := []byte{0x5A, 0xA0, 0x00}
	if err := Golay24128Encode(data); err != nil {
		t.Fatalf("encode: %v", err)
	}

	for bit := 0; bit < 24; bit++ {
		corrupted := append([]byte(nil), data...)
		bytePos, bitPos := bit/8, 7-(bit%8)
		corrupted[bytePos] ^= 1 << uint(bitPos)

		errs := Golay24128Decode(corrupted)
		if errs == 0 || errs == 0xFF {
			t.Errorf("bit %d: expected a corrected single-bit error, got errs=%d", bit, errs)
		}
	}
}

func TestGolayShortInput(t *testing.T) {
	if err := Golay2087Encode([]byte{0x01}); err == nil {
		t.Error("Golay2087Encode should reject short input")
	}
	if errs := Golay2087Decode([]byte{0x01}); errs != 0xFF {
		t.Error("Golay2087Decode should return 0xFF for short input")
	}
	if err := Golay24128Encode([]byte{0x01}); err == nil {
		t.Error("Golay24128Encode should reject short input")
	}
	if errs := Golay24128Decode([]byte{0x01}); errs != 0xFF {
		t.Error("Golay24128Decode should return 0xFF for short input")
	}
}
