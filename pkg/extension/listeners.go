package extension

import (
	"github.com/rs/zerolog/log"
)

// named pairs a listener function with its registration name.
type named[F any] struct {
	name string
	fn   F
}

// listenerList is an ordered set of uniquely named listeners.  Callers provide locking.
type listenerList[F any] []named[F]

// put registers fn under name, replacing and moving to the back any existing listener with the
// same name.
func (l listenerList[F]) put(name string, fn F) listenerList[F] {
	return append(l.remove(name), named[F]{name: name, fn: fn})
}

// remove unregisters the named listener, if present.
func (l listenerList[F]) remove(name string) listenerList[F] {
	for i, entry := range l {
		if entry.name == name {
			return append(l[:i:i], l[i+1:]...)
		}
	}
	return l
}

// guard logs and swallows a panicking listener, a misbehaving extension must not take a
// message pipeline down with it.
func guard(broker, name string) {
	if r := recover(); r != nil {
		log.Error().Str("module", "extension").Str("broker", broker).Str("listener", name).
			Interface("panic", r).Msg("Event listener panicked")
	}
}
