// Package event implements the self-describing binary codec used for
// messages delivered over the kernel file-system minifilter channel, and
// the canonical attribute-hash routine each event kind uses to turn itself
// into a list of behavioral predicates for the heuristic matcher.
package event

import (
	"encoding/binary"
	"fmt"
)

// Class is the 4-ASCII-char tag packed little-endian that prefixes every
// event frame.
type Class uint32

// classTag packs a 4-character ASCII tag the same way the kernel channel
// does: byte 0 of the tag becomes the low byte of the little-endian u32.
func classTag(tag string) Class {
	if len(tag) != 4 {
		panic("event: class tag must be exactly 4 bytes: " + tag)
	}
	return Class(binary.LittleEndian.Uint32([]byte(tag)))
}

// Recognized event classes.
var (
	ClassFileCreate       = classTag("CRE ")
	ClassProcessCreate    = classTag("PRO ")
	ClassRegistrySetValue = classTag("REG ")
	ClassImageLoad        = classTag("IMG ")
)

func (c Class) String() string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(c))
	return string(b[:])
}

// ErrTruncated is returned when a frame or a primitive within it is cut
// short of its declared length.
type ErrTruncated struct {
	Want, Have int
}

func (e ErrTruncated) Error() string {
	return fmt.Sprintf("event: truncated frame, want %d bytes, have %d", e.Want, e.Have)
}

// ErrUnknownEvent is returned when a frame's class tag is not recognized.
type ErrUnknownEvent struct {
	Class Class
}

func (e ErrUnknownEvent) Error() string {
	return fmt.Sprintf("event: unknown event class %q", e.Class)
}

// EncodeFrame prefixes payload with its class tag, producing the bytes
// that would be sent over the kernel channel.
func EncodeFrame(class Class, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(class))
	copy(out[4:], payload)
	return out
}

// peekClass reads the class tag without consuming it.
func peekClass(b []byte) (Class, error) {
	if len(b) < 4 {
		return 0, ErrTruncated{Want: 4, Have: len(b)}
	}
	return Class(binary.LittleEndian.Uint32(b)), nil
}

func putU32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func getU32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, ErrTruncated{Want: 4, Have: len(b)}
	}
	return binary.LittleEndian.Uint32(b), nil
}

// padLen returns the number of zero bytes needed to round n up to the next
// 4-byte boundary.
func padLen(n int) int {
	const alignment = 4
	if rem := n % alignment; rem != 0 {
		return alignment - rem
	}
	return 0
}

func encodeString(s string) []byte {
	data := []byte(s)
	pad := padLen(len(data))
	out := make([]byte, 4+len(data)+pad)
	binary.LittleEndian.PutUint32(out, uint32(len(data)))
	copy(out[4:], data)
	return out
}

// decodeString reads a length-prefixed, zero-padded-to-4 UTF-8 string and
// returns it along with the number of bytes consumed.
func decodeString(b []byte) (string, int, error) {
	n, err := getU32(b)
	if err != nil {
		return "", 0, err
	}
	strLen := int(n)
	need := 4 + strLen
	if len(b) < need {
		return "", 0, ErrTruncated{Want: need, Have: len(b)}
	}
	s := string(b[4:need])
	pad := padLen(strLen)
	if len(b) < need+pad {
		return "", 0, ErrTruncated{Want: need + pad, Have: len(b)}
	}
	return s, need + pad, nil
}

func encodeBytes(data []byte) []byte {
	out := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(out, uint32(len(data)))
	copy(out[4:], data)
	return out
}

// decodeBytes reads a length-prefixed byte vector (no padding) and returns
// it along with the number of bytes consumed.
func decodeBytes(b []byte) ([]byte, int, error) {
	n, err := getU32(b)
	if err != nil {
		return nil, 0, err
	}
	vecLen := int(n)
	need := 4 + vecLen
	if len(b) < need {
		return nil, 0, ErrTruncated{Want: need, Have: len(b)}
	}
	out := make([]byte, vecLen)
	copy(out, b[4:need])
	return out, need, nil
}
