package sync

import "sync"

// Counts is a snapshot of the run statistics.
type Counts struct {
	PagesFound    int
	PagesUploaded int
	PagesSkipped  int
	PageErrors    int

	FilesFound    int
	FilesUploaded int
	FilesSkipped  int
	FileErrors    int
}

// Stats is the shared accumulator updated by concurrent upload tasks.
// Each task increments exactly one counter at its single completion
// point; the mutex only guards against torn reads of the snapshot.
type Stats struct {
	mu sync.Mutex
	c  Counts
}

func (s *Stats) SetDiscovered(pages, files int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.PagesFound = pages
	s.c.FilesFound = files
}

func (s *Stats) PageUploaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.PagesUploaded++
}

func (s *Stats) PageSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.PagesSkipped++
}

func (s *Stats) PageFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.PageErrors++
}

func (s *Stats) FileUploaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.FilesUploaded++
}

func (s *Stats) FileSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.FilesSkipped++
}

func (s *Stats) FileFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.FileErrors++
}

// Counts returns a copy of the current counters.
func (s *Stats) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}
