package queue

import (
	"sync"
)

// Queue is an ordered, de-duplicating FIFO of discovered links. Each planner
// level fills one queue so that links keep their discovery order and a link
// seen twice on a listing page is only visited once.
type Queue struct {
	urls    []string
	labels  map[string]string
	visited map[string]bool
	mu      sync.Mutex
}

// New creates a new Queue instance
func New() *Queue {
	return &Queue{
		urls:    make([]string, 0),
		labels:  make(map[string]string),
		visited: make(map[string]bool),
	}
}

// Add adds a URL with its anchor label unless it has already been queued.
// It returns false for duplicates.
func (q *Queue) Add(url, label string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.visited[url] {
		return false
	}

	q.visited[url] = true
	q.labels[url] = label
	q.urls = append(q.urls, url)
	return true
}

// Next returns the next URL and its label in discovery order
func (q *Queue) Next() (string, string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.urls) == 0 {
		return "", "", false
	}

	url := q.urls[0]
	q.urls = q.urls[1:]

	return url, q.labels[url], true
}

// Truncate drops everything past the first n pending URLs. A negative n is a no-op.
func (q *Queue) Truncate(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n >= 0 && n < len(q.urls) {
		q.urls = q.urls[:n]
	}
}

// Len returns the number of pending URLs
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.urls)
}
