package alerts

import (
	"sync"

	"github.com/curb-dev/curb/internal/model"
)

// Dismissals is an in-memory set of dismissed alert keys. It is never
// written anywhere: after a reload, an alert whose pattern still holds comes
// back.
type Dismissals struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewDismissals creates an empty set.
func NewDismissals() *Dismissals {
	return &Dismissals{keys: make(map[string]struct{})}
}

// Dismiss hides the alert with key.
func (d *Dismissals) Dismiss(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = struct{}{}
}

// Reset forgets every dismissal.
func (d *Dismissals) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = make(map[string]struct{})
}

// Filter returns the alerts that have not been dismissed.
func (d *Dismissals) Filter(all []model.HabitAlert) []model.HabitAlert {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.HabitAlert, 0, len(all))
	for _, a := range all {
		if _, hidden := d.keys[a.Key]; !hidden {
			out = append(out, a)
		}
	}
	return out
}
