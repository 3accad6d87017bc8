// Package frontier holds the set of discovered-but-not-yet-fetched
// URLs as a priority queue, plus the seen-set that prevents the same
// URL from being enqueued twice.
//
// Frontier is a data structure + scoring policy, not a pipeline
// executor: it knows nothing about fetching or extraction.
package frontier

import (
	"container/heap"
	"path"
	"strings"

	"github.com/bk-ru/parser/internal/canon"
)

// Item is one pending crawl target: where to fetch it, how deep it
// is, and the priority it was scored at when enqueued.
type Item struct {
	URL      canon.URL
	Depth    int
	Priority float64
	seq      int
}

// ScoreParams carries the inputs the focused-crawl scorer needs
// beyond the URL itself.
type ScoreParams struct {
	FocusedCrawling bool
	AnchorText      string
}

var contactPathSegments = []string{"contact", "contacts", "kontakty", "contact-us", "about", "support", "help"}
var contactAnchorTokens = []string{"contact", "email", "phone", "контакт", "связь"}
var lowPrioritySegments = []string{"docs", "blog", "news", "archive", "tag", "category"}
var deprioritizedExtensions = map[string]bool{
	"pdf": true, "zip": true, "tar": true, "gz": true, "png": true,
	"jpg": true, "jpeg": true, "gif": true, "mp4": true, "mp3": true,
}

// Score computes a FrontierItem's priority; lower sorts earlier. BFS
// order is just depth; focused crawling starts from depth*10 and
// nudges likely-contact pages earlier and generic bulk content later.
func Score(u canon.URL, depth int, params ScoreParams) float64 {
	if !params.FocusedCrawling {
		return float64(depth)
	}

	score := float64(depth * 10)

	segments := strings.Split(strings.ToLower(u.Path), "/")
	for _, seg := range segments {
		for _, want := range contactPathSegments {
			if seg == want {
				score -= 8
			}
		}
		for _, want := range lowPrioritySegments {
			if seg == want {
				score += 5
			}
		}
	}

	anchor := strings.ToLower(params.AnchorText)
	for _, token := range contactAnchorTokens {
		if strings.Contains(anchor, token) {
			score -= 3
			break
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if deprioritizedExtensions[ext] {
		score += 2
	}

	return score
}

// Frontier is a min-heap of Items ordered by (Priority, insertion
// order), backed by a seen-set so a key is never enqueued twice.
// Not safe for concurrent use by itself; the Engine guards it with a
// single mutex alongside the Aggregator and counters.
type Frontier struct {
	heap itemHeap
	seen Set[string]
	next int
}

// New returns an empty Frontier.
func New() *Frontier {
	return &Frontier{seen: NewSet[string]()}
}

// TryEnqueue admits item iff its key has not been seen before, and
// records the key as seen immediately — not at pop time — so two
// workers discovering the same link concurrently can't both enqueue
// it. Returns false if the key was already seen.
func (f *Frontier) TryEnqueue(item Item) bool {
	if f.seen.Contains(item.URL.Key) {
		return false
	}
	f.seen.Add(item.URL.Key)
	item.seq = f.next
	f.next++
	heap.Push(&f.heap, item)
	return true
}

// Pop removes and returns the lowest-priority (earliest) item. The
// second return value is false when the frontier is empty.
func (f *Frontier) Pop() (Item, bool) {
	if f.heap.Len() == 0 {
		return Item{}, false
	}
	return heap.Pop(&f.heap).(Item), true
}

// Len reports how many items are pending.
func (f *Frontier) Len() int {
	return f.heap.Len()
}

// Seen reports whether key has already been enqueued or marked seen.
func (f *Frontier) Seen(key string) bool {
	return f.seen.Contains(key)
}

// MarkSeen records key as seen without enqueueing anything, so a later
// TryEnqueue of the same key is rejected.
func (f *Frontier) MarkSeen(key string) {
	f.seen.Add(key)
}

type itemHeap []Item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	*h = append(*h, x.(Item))
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
