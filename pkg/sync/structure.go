package sync

import (
	"sort"
	"sync"
)

// Structure records which pages each section is confirmed to have on
// the remote wiki. Tasks add to it as they complete; it may only be
// read after every upload task has been awaited.
type Structure struct {
	mu       sync.Mutex
	sections map[string][]string
}

func NewStructure() *Structure {
	return &Structure{sections: map[string][]string{}}
}

// Add registers a page under its section. Both fresh uploads and pages
// skipped as already-identical register here, so navigation built from
// the map survives re-runs over an unchanged tree.
func (st *Structure) Add(section, page string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sections[section] = append(st.sections[section], page)
}

// Snapshot returns a copy of the map with page lists sorted in byte
// order. Call only after the upload barrier.
func (st *Structure) Snapshot() map[string][]string {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make(map[string][]string, len(st.sections))
	for section, pages := range st.sections {
		sorted := make([]string, len(pages))
		copy(sorted, pages)
		sort.Strings(sorted)
		out[section] = sorted
	}
	return out
}
