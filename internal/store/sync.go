package store

import (
	"fmt"
	"sort"
	"time"
)

// Dataset names a kind of backend data mirrored in the cache.
type Dataset string

const (
	DatasetPlans     Dataset = "plans"
	DatasetMode      Dataset = "mode"
	DatasetSignals   Dataset = "signals"
	DatasetPositions Dataset = "positions"
	DatasetStatus    Dataset = "status"
)

// DefaultMaxAge is how long each dataset stays fresh after the backend
// last confirmed it.
var DefaultMaxAge = map[Dataset]time.Duration{
	DatasetPlans:     5 * time.Minute,
	DatasetMode:      time.Hour,
	DatasetSignals:   5 * time.Minute,
	DatasetPositions: 2 * time.Minute,
	DatasetStatus:    time.Minute,
}

// Freshness describes how current a cached dataset is.
type Freshness struct {
	Dataset   Dataset       `json:"dataset"`
	UpdatedAt time.Time     `json:"updated_at"`
	Age       time.Duration `json:"age"`
	Stale     bool          `json:"stale"`
}

// Never reports whether the dataset was never confirmed.
func (f Freshness) Never() bool { return f.UpdatedAt.IsZero() }

// Describe renders f for a banner under cached output, e.g.
// "Stale cache - updated 12 minutes ago".
func (f Freshness) Describe() string {
	if f.Never() {
		return "Never synced"
	}
	if f.Stale {
		return "Stale cache - updated " + ago(f.Age)
	}
	return "Updated " + ago(f.Age)
}

// String renders f as one line of the health command's cache section.
func (f Freshness) String() string {
	if f.Never() {
		return fmt.Sprintf("%s: never synced", f.Dataset)
	}
	state := "fresh"
	if f.Stale {
		state = "stale"
	}
	return fmt.Sprintf("%s: %s (last sync %s, %s)", f.Dataset, state, f.UpdatedAt.Format("15:04:05"), ago(f.Age))
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d/time.Hour))
	}
	return fmt.Sprintf("%d days ago", int(d/(24*time.Hour)))
}

// Tracker records in the cache when each dataset was last confirmed by
// the backend.
type Tracker struct {
	cache  Cache
	maxAge map[Dataset]time.Duration
	now    func() time.Time
}

// NewTracker returns a tracker over cache. A nil maxAge uses DefaultMaxAge.
func NewTracker(cache Cache, maxAge map[Dataset]time.Duration) *Tracker {
	if maxAge == nil {
		maxAge = DefaultMaxAge
	}
	return &Tracker{cache: cache, maxAge: maxAge, now: time.Now}
}

// Touch records that ds was confirmed by the backend just now.
func (t *Tracker) Touch(ds Dataset) error {
	if err := t.cache.SetLastSync(string(ds), t.now()); err != nil {
		return fmt.Errorf("recording %s sync: %w", ds, err)
	}
	return nil
}

// Freshness returns how current ds is. Datasets without a configured
// max age go stale after an hour.
func (t *Tracker) Freshness(ds Dataset) Freshness {
	limit, ok := t.maxAge[ds]
	if !ok || limit <= 0 {
		limit = time.Hour
	}
	f := Freshness{Dataset: ds, UpdatedAt: t.cache.GetLastSync(string(ds))}
	if f.Never() {
		f.Stale = true
		return f
	}
	f.Age = t.now().Sub(f.UpdatedAt)
	f.Stale = f.Age >= limit
	return f
}

// All returns the freshness of every tracked dataset, ordered by name.
func (t *Tracker) All() []Freshness {
	names := make([]string, 0, len(t.maxAge))
	for ds := range t.maxAge {
		names = append(names, string(ds))
	}
	sort.Strings(names)

	out := make([]Freshness, len(names))
	for i, name := range names {
		out[i] = t.Freshness(Dataset(name))
	}
	return out
}
