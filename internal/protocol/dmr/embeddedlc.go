package dmr

// EmbeddedLC accumulates one Full LC and doles it out fragment-by-fragment
// across the six burst positions (n=0..5) of a DMR voice superframe,
// folded down to the one-byte embedded-signalling slot this payload layout
// carries (see EmbeddedByte/JoinAmbe). Burst position n=0 carries the voice
// sync and n=5 carries no LC fragment; both are left zero.
type EmbeddedLC struct {
	fragments [6]byte
}

// NewEmbeddedLC folds lc's nine raw bytes (FLCO, FID, ServiceOptions,
// 3-byte DstID, 3-byte SrcID) across burst positions 1-4, XORing each
// fragment from bytes spread across the LC so every field contributes to
// at least one fragment.
func NewEmbeddedLC(lc FullLC) EmbeddedLC {
	raw := lc.bytes()
	var e EmbeddedLC
	e.fragments[1] = raw[0] ^ raw[4] ^ raw[8]
	e.fragments[2] = raw[1] ^ raw[5]
	e.fragments[3] = raw[2] ^ raw[6]
	e.fragments[4] = raw[3] ^ raw[7]
	return e
}

// Fragment returns the embedded-signalling byte for burst position n
// (0..5); out-of-range n returns 0.
func (e EmbeddedLC) Fragment(n uint8) byte {
	if n > 5 {
		return 0
	}
	return e.fragments[n]
}
