package ui

import (
	"strings"
	"sync"
	"sync/atomic"
)

// LineBuffer is a bounded ring of text lines with a byte budget. The oldest
// lines are evicted first; a single line larger than the budget is dropped.
type LineBuffer struct {
	mu       sync.RWMutex
	lines    []string
	head     int
	count    int
	maxBytes int
	curBytes int
	seq      atomic.Uint64

	evicted   atomic.Uint64
	oversized atomic.Uint64
}

// NewLineBuffer holds at most maxLines lines and maxBytes bytes. A zero
// maxBytes disables the byte budget.
func NewLineBuffer(maxLines, maxBytes int) *LineBuffer {
	if maxLines <= 0 {
		maxLines = 1
	}
	if maxBytes < 0 {
		maxBytes = 0
	}
	return &LineBuffer{lines: make([]string, maxLines), maxBytes: maxBytes}
}

// Append stores line, reporting false when it was too large to keep.
func (b *LineBuffer) Append(line string) bool {
	if b == nil {
		return false
	}
	size := len(line)
	if b.maxBytes > 0 && size > b.maxBytes {
		b.oversized.Add(1)
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.count > 0 && (b.count >= len(b.lines) || (b.maxBytes > 0 && b.curBytes+size > b.maxBytes)) {
		b.evictOldestLocked()
	}
	pos := (b.head + b.count) % len(b.lines)
	b.lines[pos] = line
	b.curBytes += size
	b.count++
	b.seq.Add(1)
	return true
}

func (b *LineBuffer) evictOldestLocked() {
	b.curBytes -= len(b.lines[b.head])
	b.lines[b.head] = ""
	b.head = (b.head + 1) % len(b.lines)
	b.count--
	b.evicted.Add(1)
}

// Lines returns the buffered lines, oldest first.
func (b *LineBuffer) Lines() []string {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.lines[(b.head+i)%len(b.lines)]
	}
	return out
}

// Text joins the buffered lines with newlines.
func (b *LineBuffer) Text() string {
	return strings.Join(b.Lines(), "\n")
}

// Seq increments on every stored line.
func (b *LineBuffer) Seq() uint64 {
	if b == nil {
		return 0
	}
	return b.seq.Load()
}

// Drops reports how many lines were evicted and how many were too large.
func (b *LineBuffer) Drops() (evicted, oversized uint64) {
	if b == nil {
		return 0, 0
	}
	return b.evicted.Load(), b.oversized.Load()
}
