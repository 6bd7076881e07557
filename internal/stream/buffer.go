package stream

import (
	"sync"

	"github.com/sevigo/revision-warden/internal/core"
)

type entry struct {
	seq       uint64
	candidate core.RevisionCandidate
}

// Buffer is a bounded ring of recent candidates for one wiki. Each entry gets
// a sequence number so independent readers can drain it through their own
// cursor. Readers that fall behind by more than the capacity lose the
// overwritten entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []entry
	start   int
	size    int
	lastSeq uint64
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{entries: make([]entry, max(1, capacity))}
}

// Append stores c and returns its sequence number.
func (b *Buffer) Append(c core.RevisionCandidate) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeq++
	idx := (b.start + b.size) % len(b.entries)
	b.entries[idx] = entry{seq: b.lastSeq, candidate: c}
	if b.size < len(b.entries) {
		b.size++
	} else {
		b.start = (b.start + 1) % len(b.entries)
	}
	return b.lastSeq
}

// Since returns the candidates appended after cursor, oldest first, and the
// cursor to pass next time.
func (b *Buffer) Since(cursor uint64) ([]core.RevisionCandidate, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.RevisionCandidate
	for i := 0; i < b.size; i++ {
		e := b.entries[(b.start+i)%len(b.entries)]
		if e.seq > cursor {
			out = append(out, e.candidate)
		}
	}
	return out, b.lastSeq
}

// Len returns the number of candidates currently held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
