package flow

import (
	"github.com/OneOfOne/xxhash"
)

// numBuckets is a fixed prime. The table never grows, so chains hold
// about flows/numBuckets records each; hashing over the full key keeps
// them evenly spread.
const numBuckets = 1021

// Table maps flow keys to their records. Records are never removed;
// the table grows monotonically over the run. Not safe for concurrent
// use: the capture loop is the only caller.
type Table struct {
	buckets [numBuckets]*State

	// clock is the process-wide logical clock. It advances on record
	// creation and on every lookup hit, and is the only notion of time
	// used for eviction ordering.
	clock uint64
}

func NewTable() *Table {
	return &Table{}
}

func bucketIndex(k Key) int {
	var buf [12]byte
	k.pack(&buf)
	return int(xxhash.Checksum64(buf[:]) % numBuckets)
}

// Find returns the record for k, bumping its access time, or nil if
// the flow has not been seen.
func (t *Table) Find(k Key) *State {
	for s := t.buckets[bucketIndex(k)]; s != nil; s = s.next {
		if s.Key == k {
			s.LastAccess = t.tick()
			return s
		}
	}
	return nil
}

// Create allocates a record for k anchored at isn and prepends it to
// its bucket. Recently created flows tend to be the next ones
// accessed, so they go to the bucket head.
func (t *Table) Create(k Key, isn uint32) *State {
	idx := bucketIndex(k)
	s := &State{
		Key:        k,
		ISN:        isn,
		LastAccess: t.tick(),
		next:       t.buckets[idx],
	}
	t.buckets[idx] = s
	return s
}

func (t *Table) tick() uint64 {
	t.clock++
	return t.clock
}
