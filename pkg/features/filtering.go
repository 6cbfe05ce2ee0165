package features

import (
	"errors"
	"sort"
	"sync"

	"github.com/relaylog/relay/pkg/types"
)

// ErrNilFilter is returned when a nil filter function is registered.
var ErrNilFilter = errors.New("filter cannot be nil")

// NamedFilter pairs a predicate with metadata used for ordering and
// enable/disable without removal.
type NamedFilter struct {
	Name     string
	Filter   types.FilterFunc
	Priority int // higher runs first
	Enabled  bool
}

// FilterManager runs an ordered chain of predicates before a record reaches
// a sink; the record is kept only if every enabled filter returns true.
type FilterManager struct {
	mu             sync.RWMutex
	filters        []NamedFilter
	errorHandler   func(source, dest, msg string, err error)
	metricsHandler func(string)
	checks         uint64
	passed         uint64
	filtered       uint64
}

// NewFilterManager creates an empty FilterManager.
func NewFilterManager() *FilterManager {
	return &FilterManager{}
}

// SetErrorHandler sets the error handling function.
func (f *FilterManager) SetErrorHandler(handler func(source, dest, msg string, err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorHandler = handler
}

// SetMetricsHandler sets the metrics tracking function.
func (f *FilterManager) SetMetricsHandler(handler func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metricsHandler = handler
}

// AddFilter registers a named filter and re-sorts the chain by descending
// priority, ties broken by insertion order.
func (f *FilterManager) AddFilter(name string, priority int, filter types.FilterFunc) error {
	if filter == nil {
		return ErrNilFilter
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.filters = append(f.filters, NamedFilter{
		Name:     name,
		Filter:   filter,
		Priority: priority,
		Enabled:  true,
	})
	sort.SliceStable(f.filters, func(i, j int) bool {
		return f.filters[i].Priority > f.filters[j].Priority
	})
	return nil
}

// RemoveFilter removes a filter by name.
func (f *FilterManager) RemoveFilter(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, nf := range f.filters {
		if nf.Name == name {
			f.filters = append(f.filters[:i], f.filters[i+1:]...)
			return
		}
	}
}

// SetEnabled toggles a filter by name without removing it from the chain.
func (f *FilterManager) SetEnabled(name string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.filters {
		if f.filters[i].Name == name {
			f.filters[i].Enabled = enabled
			return
		}
	}
}

// Names returns the registered filter names, in evaluation order.
func (f *FilterManager) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, len(f.filters))
	for i, nf := range f.filters {
		names[i] = nf.Name
	}
	return names
}

// Allow runs every enabled filter against r, short-circuiting on the first
// rejection. It reports true if r should reach the sink.
func (f *FilterManager) Allow(r *types.Record) bool {
	f.mu.RLock()
	filters := make([]NamedFilter, len(f.filters))
	copy(filters, f.filters)
	metricsHandler := f.metricsHandler
	f.mu.RUnlock()

	f.mu.Lock()
	f.checks++
	f.mu.Unlock()

	for _, nf := range filters {
		if !nf.Enabled {
			continue
		}
		if !nf.Filter(r) {
			f.mu.Lock()
			f.filtered++
			f.mu.Unlock()
			if metricsHandler != nil {
				metricsHandler("filter_rejected")
			}
			return false
		}
	}

	f.mu.Lock()
	f.passed++
	f.mu.Unlock()
	return true
}

// FilterStats is a point-in-time snapshot of a FilterManager's counters.
type FilterStats struct {
	Checks   uint64
	Passed   uint64
	Filtered uint64
}

// Stats returns the current filter counters.
func (f *FilterManager) Stats() FilterStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FilterStats{Checks: f.checks, Passed: f.passed, Filtered: f.filtered}
}

// SkipServerLogs returns a filter that rejects records with no app_id: the
// server's own diagnostic output, as opposed to a record originating from a
// tracked application. It is a convenience filter, not a security boundary.
func SkipServerLogs() types.FilterFunc {
	return func(r *types.Record) bool {
		return r.AppID != ""
	}
}

// MinLevel returns a filter that rejects records below the given level,
// for a per-sink threshold stricter than the global level filter.
func MinLevel(level types.Level) types.FilterFunc {
	return func(r *types.Record) bool {
		return r.Level >= level
	}
}
