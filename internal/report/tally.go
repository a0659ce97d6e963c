// Package report renders the running progress marks and end-of-run summaries.
package report

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// Percentage returns n/d as a rounded whole percentage, or 0 when d is 0.
func Percentage(n, d int) int {
	if d == 0 {
		return 0
	}
	return int(math.Round(100 * float64(n) / float64(d)))
}

// Progress prints one mark per processed item: "." for success and "|" for
// any failure.
type Progress struct {
	mu sync.Mutex
	w  io.Writer
}

// NewProgress writes marks to w; a nil writer discards them.
func NewProgress(w io.Writer) *Progress {
	if w == nil {
		w = io.Discard
	}
	return &Progress{w: w}
}

// Mark records the outcome of one item.
func (p *Progress) Mark(ok bool) {
	if p == nil {
		return
	}
	mark := "|"
	if ok {
		mark = "."
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.w, mark)
}

// Section starts a new block of progress output under a heading.
func (p *Progress) Section(format string, args ...any) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, "\n\n"+format+"\n", args...)
}

// FetchTally counts fetch outcomes for one pass or a whole run.
type FetchTally struct {
	Attempted         int           `json:"attempted"`
	Saved             int           `json:"saved"`
	TransportErrors   int           `json:"transport_errors"`
	PermanentFailures int           `json:"permanent_failures"`
	Discarded         int           `json:"discarded"`
	StoreErrors       int           `json:"store_errors"`
	RequestTime       time.Duration `json:"request_time"`
	SaveTime          time.Duration `json:"save_time"`
}

// Add folds other into t.
func (t *FetchTally) Add(other FetchTally) {
	t.Attempted += other.Attempted
	t.Saved += other.Saved
	t.TransportErrors += other.TransportErrors
	t.PermanentFailures += other.PermanentFailures
	t.Discarded += other.Discarded
	t.StoreErrors += other.StoreErrors
	t.RequestTime += other.RequestTime
	t.SaveTime += other.SaveTime
}

// Failures is the number of attempted urls that were not saved.
func (t FetchTally) Failures() int {
	return t.TransportErrors + t.PermanentFailures + t.Discarded + t.StoreErrors
}

// ExtractTally counts extraction outcomes for one run.
type ExtractTally struct {
	Pages       int `json:"pages"`
	Crawled     int `json:"crawled"`
	NoLinks     int `json:"no_links"`
	LinksAdded  int `json:"links_added"`
	Duplicates  int `json:"duplicates"`
	Discarded   int `json:"discarded"`
	ParseErrors int `json:"parse_errors"`
	StoreErrors int `json:"store_errors"`
}

// Failures is the number of pages that could not be read plus link inserts
// the store rejected.
func (t ExtractTally) Failures() int {
	return t.ParseErrors + t.StoreErrors
}
