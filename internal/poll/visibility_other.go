//go:build !unix

package poll

import "os"

func visibilitySignals() []os.Signal { return nil }

func eventFor(os.Signal) VisibilityEvent { return EventNone }
