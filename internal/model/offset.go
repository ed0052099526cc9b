package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// OffsetKind says which instant an Offset is measured from.
type OffsetKind int

const (
	// BeforeEvent counts hours back from the event date.
	BeforeEvent OffsetKind = iota + 1
	// AfterAcceptance counts minutes forward from the moment the reminder was accepted.
	AfterAcceptance
)

const (
	MaxBeforeEventHours    = 8760
	MaxAfterAcceptanceMins = 10080
	MaxOffsetsPerReminder  = 10
)

var (
	ErrZeroOffset       = errors.New("offset must not be zero")
	ErrOffsetRange      = errors.New("offset out of range")
	ErrTooManyOffsets   = errors.New("too many offsets")
	ErrDuplicateOffsets = errors.New("duplicate offsets")
)

// Offset is a single reminder fire point. On the wire it is a signed integer:
// positive values are hours before the event, negative values are minutes
// after acceptance.
type Offset struct {
	Kind   OffsetKind
	Amount int
}

func HoursBefore(h int) Offset  { return Offset{Kind: BeforeEvent, Amount: h} }
func MinutesAfter(m int) Offset { return Offset{Kind: AfterAcceptance, Amount: m} }

// ParseOffset decodes the signed wire value.
func ParseOffset(v int) (Offset, error) {
	switch {
	case v == 0:
		return Offset{}, ErrZeroOffset
	case v > 0:
		if v > MaxBeforeEventHours {
			return Offset{}, fmt.Errorf("%w: %d hours", ErrOffsetRange, v)
		}
		return HoursBefore(v), nil
	default:
		if -v > MaxAfterAcceptanceMins {
			return Offset{}, fmt.Errorf("%w: %d minutes", ErrOffsetRange, -v)
		}
		return MinutesAfter(-v), nil
	}
}

// Wire returns the signed integer encoding.
func (o Offset) Wire() int {
	if o.Kind == AfterAcceptance {
		return -o.Amount
	}
	return o.Amount
}

// FireAt returns the instant the offset fires and the scheduled notification
// type it produces. ok is false when an AfterAcceptance offset has no
// acceptance time to anchor to.
func (o Offset) FireAt(eventDate time.Time, respondedAt *time.Time) (at time.Time, notifType string, ok bool) {
	switch o.Kind {
	case BeforeEvent:
		return eventDate.Add(-time.Duration(o.Amount) * time.Hour), ScheduleTypeReminder, true
	case AfterAcceptance:
		if respondedAt == nil {
			return time.Time{}, "", false
		}
		return respondedAt.Add(time.Duration(o.Amount) * time.Minute), ScheduleTypeCallbackReminder, true
	}
	return time.Time{}, "", false
}

func (o Offset) String() string {
	if o.Kind == AfterAcceptance {
		return fmt.Sprintf("%dm after acceptance", o.Amount)
	}
	return fmt.Sprintf("%dh before event", o.Amount)
}

func (o Offset) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Wire())
}

func (o *Offset) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseOffset(v)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Offsets is an ordered offset list.
type Offsets []Offset

// DefaultOffsets are used when a reminder is created without any.
func DefaultOffsets() Offsets {
	return Offsets{HoursBefore(1), HoursBefore(24)}
}

// ParseOffsets decodes and validates a list of wire values.
func ParseOffsets(values []int) (Offsets, error) {
	if len(values) > MaxOffsetsPerReminder {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyOffsets, len(values), MaxOffsetsPerReminder)
	}
	seen := make(map[int]bool, len(values))
	out := make(Offsets, 0, len(values))
	for _, v := range values {
		if seen[v] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateOffsets, v)
		}
		seen[v] = true
		o, err := ParseOffset(v)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Wire returns the signed integer encoding of every offset.
func (offs Offsets) Wire() []int {
	out := make([]int, len(offs))
	for i, o := range offs {
		out[i] = o.Wire()
	}
	return out
}

// Has reports whether any offset is of the given kind.
func (offs Offsets) Has(kind OffsetKind) bool {
	for _, o := range offs {
		if o.Kind == kind {
			return true
		}
	}
	return false
}
