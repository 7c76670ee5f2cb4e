// Package callctx holds the call-addressing metadata shared by both
// transcoding directions: the DMR-originated call context a P25 LDU1/LDU2
// carries, and vice versa. One CallContext is created on the first voice
// frame of a call and destroyed on terminator or watchdog expiry.
package callctx

import "fmt"

// CallContext is the per-call metadata both machines build up and consult.
type CallContext struct {
	SrcID     uint32 // 24-bit
	DstID     uint32 // 24-bit
	Group     bool
	Emergency bool
	Encrypted bool
	Priority  uint8 // 0-7

	// LDU2-carried encryption sync; these update CallContext but never
	// affect voice routing.
	AlgID            uint8
	KeyID            uint16
	MessageIndicator [9]byte
}

// New constructs a CallContext for a group or private call.
func New(srcID, dstID uint32, group bool) *CallContext {
	return &CallContext{SrcID: srcID, DstID: dstID, Group: group}
}

// ServiceOptions decodes a P25 service-options byte into the emergency,
// encrypted and priority fields.
func (c *CallContext) ServiceOptions(b byte) {
	c.Emergency = b&0x80 == 0x80
	c.Encrypted = b&0x40 == 0x40
	c.Priority = b & 0x07
}

// ServiceOptionsByte re-packs the emergency/encrypted/priority fields into
// a single P25 service-options byte, the inverse of ServiceOptions.
func (c *CallContext) ServiceOptionsByte() byte {
	var b byte
	if c.Emergency {
		b |= 0x80
	}
	if c.Encrypted {
		b |= 0x40
	}
	b |= c.Priority & 0x07
	return b
}

func (c *CallContext) String() string {
	kind := "Group"
	if !c.Group {
		kind = "Private"
	}
	return fmt.Sprintf("Call{%s src=%d dst=%d emerg=%t encrypt=%t prio=%d}",
		kind, c.SrcID, c.DstID, c.Emergency, c.Encrypted, c.Priority)
}
