package poll

import (
	"context"
	"os"
	"os/signal"
)

// Visibility is driven by a visibility source.
type Visibility interface {
	Hide()
	Show(ctx context.Context)
}

// VisibilityEvent is what a signal means for the view.
type VisibilityEvent int

const (
	EventNone VisibilityEvent = iota
	EventHide
	EventShow
	// EventResume re-initialises after the process was suspended.
	EventResume
)

// Apply performs ev on v.
func Apply(ctx context.Context, v Visibility, ev VisibilityEvent) {
	switch ev {
	case EventHide:
		v.Hide()
	case EventShow:
		v.Show(ctx)
	case EventResume:
		v.Hide()
		v.Show(ctx)
	}
}

// WatchVisibility drives v from process signals until ctx is done or the
// returned stop function is called. On platforms without the signals it
// does nothing.
func WatchVisibility(ctx context.Context, v Visibility) (stop func()) {
	signals := visibilitySignals()
	if len(signals) == 0 {
		return func() {}
	}

	ch := make(chan os.Signal, 4)
	signal.Notify(ch, signals...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case sig := <-ch:
				Apply(ctx, v, eventFor(sig))
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
