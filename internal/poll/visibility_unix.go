//go:build unix

package poll

import (
	"os"
	"syscall"
)

// SIGUSR1 hides, SIGUSR2 shows, SIGCONT (after a suspend) re-initialises.
func visibilitySignals() []os.Signal {
	return []os.Signal{syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGCONT}
}

func eventFor(sig os.Signal) VisibilityEvent {
	switch sig {
	case syscall.SIGUSR1:
		return EventHide
	case syscall.SIGUSR2:
		return EventShow
	case syscall.SIGCONT:
		return EventResume
	}
	return EventNone
}
