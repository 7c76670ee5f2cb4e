package edac

// Hamming(15,11,3) and Hamming(13,9,3) codes, the row/column codes used by
// BPTC(196,96).

func boolXOR(values ...bool) bool {
	result := false
	for _, v := range values {
		result = (result && !v) || (!result && v)
	}
	return result
}

// Encode15113 sets the four Hamming(15,11,3) parity bits (indices 11-14) from
// the eleven data bits (indices 0-10) already present in d.
func Encode15113(d []bool) {
	if len(d) < 15 {
		return
	}

	d[11] = boolXOR(d[0], d[1], d[2], d[3], d[5], d[7], d[8])
	d[12] = boolXOR(d[1], d[2], d[3], d[4], d[6], d[8], d[9])
	d[13] = boolXOR(d[2], d[3], d[4], d[5], d[7], d[9], d[10])
	d[14] = boolXOR(d[0], d[1], d[2], d[4], d[6], d[7], d[10])
}

// Decode15113 checks and, if correctable, fixes a single-bit error in d.
// Returns true if a bit was flipped.
func Decode15113(d []bool) bool {
	if len(d) < 15 {
		return false
	}

	c0 := boolXOR(d[0], d[1], d[2], d[3], d[5], d[7], d[8])
	c1 := boolXOR(d[1], d[2], d[3], d[4], d[6], d[8], d[9])
	c2 := boolXOR(d[2], d[3], d[4], d[5], d[7], d[9], d[10])
	c3 := boolXOR(d[0], d[1], d[2], d[4], d[6], d[7], d[10])

	var n uint8
	if c0 != d[11] {
		n |= 0x01
	}
	if c1 != d[12] {
		n |= 0x02
	}
	if c2 != d[13] {
		n |= 0x04
	}
	if c3 != d[14] {
		n |= 0x08
	}

	switch n {
	case 0x01:
		d[11] = !d[11]
		return true
	case 0x02:
		d[12] = !d[12]
		return true
	case 0x04:
		d[13] = !d[13]
		return true
	case 0x08:
		d[14] = !d[14]
		return true
	case 0x09:
		d[0] = !d[0]
		return true
	case 0x0B:
		d[1] = !d[1]
		return true
	case 0x0F:
		d[2] = !d[2]
		return true
	case 0x07:
		d[3] = !d[3]
		return true
	case 0x0E:
		d[4] = !d[4]
		return true
	case 0x05:
		d[5] = !d[5]
		return true
	case 0x0A:
		d[6] = !d[6]
		return true
	case 0x0D:
		d[7] = !d[7]
		return true
	case 0x03:
		d[8] = !d[8]
		return true
	case 0x06:
		d[9] = !d[9]
		return true
	case 0x0C:
		d[10] = !d[10]
		return true
	default:
		return false
	}
}

// Encode1393 sets the four Hamming(13,9,3) parity bits (indices 9-12) from
// the nine data bits (indices 0-8) already present in d.
func Encode1393(d []bool) {
	if len(d) < 13 {
		return
	}

	d[9] = boolXOR(d[0], d[1], d[3], d[5], d[6])
	d[10] = boolXOR(d[0], d[1], d[2], d[4], d[6], d[7])
	d[11] = boolXOR(d[0], d[1], d[2], d[3], d[5], d[7], d[8])
	d[12] = boolXOR(d[0], d[2], d[4], d[5], d[8])
}

// Decode1393 checks and, if correctable, fixes a single-bit error in d.
func Decode1393(d []bool) bool {
	if len(d) < 13 {
		return false
	}

	c0 := boolXOR(d[0], d[1], d[3], d[5], d[6])
	c1 := boolXOR(d[0], d[1], d[2], d[4], d[6], d[7])
	c2 := boolXOR(d[0], d[1], d[2], d[3], d[5], d[7], d[8])
	c3 := boolXOR(d[0], d[2], d[4], d[5], d[8])

	var n uint8
	if c0 != d[9] {
		n |= 0x01
	}
	if c1 != d[10] {
		n |= 0x02
	}
	if c2 != d[11] {
		n |= 0x04
	}
	if c3 != d[12] {
		n |= 0x08
	}

	switch n {
	case 0x01:
		d[9] = !d[9]
		return true
	case 0x02:
		d[10] = !d[10]
		return true
	case 0x04:
		d[11] = !d[11]
		return true
	case 0x08:
		d[12] = !d[12]
		return true
	case 0x0F:
		d[0] = !d[0]
		return true
	case 0x07:
		d[1] = !d[1]
		return true
	case 0x0E:
		d[2] = !d[2]
		return true
	case 0x05:
		d[3] = !d[3]
		return true
	case 0x0A:
		d[4] = !d[4]
		return true
	case 0x0D:
		d[5] = !d[5]
		return true
	case 0x03:
		d[6] = !d[6]
		return true
	case 0x06:
		d[7] = !d[7]
		return true
	case 0x0C:
		d[8] = !d[8]
		return true
	default:
		return false
	}
}

// ByteToBitsBE unpacks a byte into 8 bools, MSB first.
func ByteToBitsBE(b uint8, bits []bool) {
	if len(bits) < 8 {
		return
	}
	bits[0] = (b & 0x80) != 0
	bits[1] = (b & 0x40) != 0
	bits[2] = (b & 0x20) != 0
	bits[3] = (b & 0x10) != 0
	bits[4] = (b & 0x08) != 0
	bits[5] = (b & 0x04) != 0
	bits[6] = (b & 0x02) != 0
	bits[7] = (b & 0x01) != 0
}

// BitsToByteBE packs 8 bools (MSB first) into a byte.
func BitsToByteBE(bits []bool) uint8 {
	if len(bits) < 8 {
		return 0
	}
	var b uint8
	if bits[0] {
		b |= 0x80
	}
	if bits[1] {
		b |= 0x40
	}
	if bits[2] {
		b |= 0x20
	}
	if bits[3] {
		b |= 0x10
	}
	if bits[4] {
		b |= 0x08
	}
	if bits[5] {
		b |= 0x04
	}
	if bits[6] {
		b |= 0x02
	}
	if bits[7] {
		b |= 0x01
	}
	return b
}
