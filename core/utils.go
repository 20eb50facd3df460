package core

import (
	"github.com/encodeous/tpwsn/state"
)

// TokenNewer reports whether b is newer than a in 8-bit serial number arithmetic
func TokenNewer(a, b uint8) bool {
	return int8(a-b) < 0
}

// Get returns the running module of type T
func Get[T state.NyModule](s *state.State) (T, bool) {
	for _, m := range s.Modules {
		if t, ok := m.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}
