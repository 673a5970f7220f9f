// Package signal defines the core data model shared by the wire codec, the
// signal table, and the pub/sub pipeline: a typed, timestamped scalar value
// identified by a numeric id.
package signal

import "fmt"

// Type is a one-hot bitflag so that subscription filters can be plain
// bitmasks over the flag set.
type Type uint8

const (
	Discrete Type = 1 << 0
	Analog   Type = 1 << 1

	// FilterAll selects every defined type.
	FilterAll = Discrete | Analog
)

// Valid reports whether t is exactly one of the defined kinds, not zero and
// not a combination of bits. Filters are allowed to combine bits; a Signal's
// own Type never is.
func (t Type) Valid() bool {
	return t == Discrete || t == Analog
}

// Matches reports whether t passes the filter bitmask f, i.e. t&f != 0.
func (t Type) Matches(f Type) bool {
	return t&f != 0
}

func (t Type) String() string {
	switch t {
	case Discrete:
		return "discrete"
	case Analog:
		return "analog"
	default:
		return fmt.Sprintf("type(%#x)", uint8(t))
	}
}

// Signal is an id-tagged, type-tagged, timestamped scalar value.
type Signal struct {
	ID    uint32
	Type  Type
	Value float64
	// Ts is a monotonic timestamp. Admission into the signal table accepts
	// only non-decreasing Ts per id (see signaltable.Table.PushSignal).
	Ts int64
}

func (s Signal) String() string {
	return fmt.Sprintf("Signal{id=%d type=%s value=%g ts=%d}", s.ID, s.Type, s.Value, s.Ts)
}
