// Package dispatch maps a requested execution mode onto the execution context that
// actually runs a piece of work: the caller's goroutine, a fresh goroutine, or a
// designated single serialized context (the affinity context).
//
// The mapping holds no state. Every call to Policy.Execute decides afresh from the
// mode it is given and the affinity context configured at that moment.
package dispatch

import (
	"fmt"
	"strings"
)

// Mode selects the execution context for a callback or a publish fan-out.
type Mode uint8

const (
	// Current runs synchronously on the calling goroutine.
	Current Mode = iota
	// New runs on a freshly started goroutine, fire-and-forget.
	New
	// Affinity runs on the designated affinity context and blocks the caller until it
	// finished. Without an affinity context it behaves like Current.
	Affinity
)

func (m Mode) String() string {
	switch m {
	case Current:
		return "current"
	case New:
		return "new"
	case Affinity:
		return "affinity"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode parses the textual form produced by Mode.String, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current":
		return Current, nil
	case "new":
		return New, nil
	case "affinity", "dispatcher", "ui":
		return Affinity, nil
	default:
		return Current, fmt.Errorf("dispatch: unknown mode %q", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
