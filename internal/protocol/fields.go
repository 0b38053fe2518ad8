package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// DurationLen is the wire width of a Duration.
	DurationLen = 8
	// DeclineDetailLen is the wire width of an encoded DeclineReason.
	DeclineDetailLen = 8
)

// Duration is a test length in whole seconds as carried on the wire.
type Duration uint64

// DurationOf truncates d to whole seconds. Negative values clamp to zero.
func DurationOf(d time.Duration) Duration {
	if d <= 0 {
		return 0
	}
	return Duration(d / time.Second)
}

// Std converts to time.Duration, saturating at the largest representable value.
func (d Duration) Std() time.Duration {
	if uint64(d) > uint64(math.MaxInt64/int64(time.Second)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d) * time.Second
}

func (d Duration) String() string {
	return fmt.Sprintf("%ds", uint64(d))
}

// EncodeDuration returns the 8-byte big-endian form of d.
func EncodeDuration(d Duration) [DurationLen]byte {
	var buf [DurationLen]byte
	binary.BigEndian.PutUint64(buf[:], uint64(d))
	return buf
}

// DecodeDuration reads a Duration from the first DurationLen bytes of b.
func DecodeDuration(b []byte) (Duration, error) {
	if len(b) < DurationLen {
		return 0, fmt.Errorf("%w: duration needs %d bytes, got %d", ErrTruncated, DurationLen, len(b))
	}
	return Duration(binary.BigEndian.Uint64(b[:DurationLen])), nil
}

// DeclineKind is the discriminant of a DeclineReason.
type DeclineKind uint32

const (
	DeclineUnknown            DeclineKind = 0
	DeclineMaxThreadsExceeded DeclineKind = 1
)

// DeclineReason explains why a server refused a session.
type DeclineReason struct {
	Kind DeclineKind
	// Capacity is set for DeclineMaxThreadsExceeded.
	Capacity uint32
}

// UnknownReason is the forward-compatible default decode result.
func UnknownReason() DeclineReason {
	return DeclineReason{Kind: DeclineUnknown}
}

// MaxThreadsExceeded reports a server at its configured capacity.
func MaxThreadsExceeded(capacity uint32) DeclineReason {
	return DeclineReason{Kind: DeclineMaxThreadsExceeded, Capacity: capacity}
}

func (r DeclineReason) String() string {
	switch r.Kind {
	case DeclineMaxThreadsExceeded:
		return fmt.Sprintf("max threads exceeded (capacity %d)", r.Capacity)
	default:
		return "unknown"
	}
}

// Uint64 packs r: high 32 bits discriminant, low 32 bits detail.
func (r DeclineReason) Uint64() uint64 {
	switch r.Kind {
	case DeclineMaxThreadsExceeded:
		return uint64(DeclineMaxThreadsExceeded)<<32 | uint64(r.Capacity)
	default:
		return uint64(DeclineUnknown) << 32
	}
}

// DeclineReasonFromUint64 unpacks v. Unrecognized discriminants yield Unknown.
func DeclineReasonFromUint64(v uint64) DeclineReason {
	switch DeclineKind(v >> 32) {
	case DeclineMaxThreadsExceeded:
		return MaxThreadsExceeded(uint32(v))
	default:
		return UnknownReason()
	}
}

// EncodeDeclineReason returns the 8-byte big-endian form of r.
func EncodeDeclineReason(r DeclineReason) [DeclineDetailLen]byte {
	var buf [DeclineDetailLen]byte
	binary.BigEndian.PutUint64(buf[:], r.Uint64())
	return buf
}

// DecodeDeclineReason reads a DeclineReason from the first DeclineDetailLen bytes
// of b. Only short input is an error.
func DecodeDeclineReason(b []byte) (DeclineReason, error) {
	if len(b) < DeclineDetailLen {
		return DeclineReason{}, fmt.Errorf("%w: decline detail needs %d bytes, got %d", ErrTruncated, DeclineDetailLen, len(b))
	}
	return DeclineReasonFromUint64(binary.BigEndian.Uint64(b[:DeclineDetailLen])), nil
}
