package engine

import "sync"

// Location points at the byte range of the most recent Set command for a
// key: the generation file it lives in, the offset of its msgpack payload
// (past the on-disk length header), and the payload's length.
type Location struct {
	Generation uint64
	Offset     int64
	Length     int64
}

// index is the in-memory key -> Location map (spec §3). A single
// sync.RWMutex guards it, the usual discipline for a map shared between
// many readers and a single mutator; spec §4.C explicitly allows this over
// a striped or lock-free map.
type index struct {
	mu sync.RWMutex
	m  map[string]Location
}

func newIndex() *index {
	return &index{m: make(map[string]Location)}
}

func (ix *index) get(key string) (Location, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	loc, ok := ix.m[key]
	return loc, ok
}

// set inserts or replaces key's Location, returning the displaced entry
// if one existed.
func (ix *index) set(key string, loc Location) (old Location, hadOld bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	old, hadOld = ix.m[key]
	ix.m[key] = loc
	return old, hadOld
}

func (ix *index) remove(key string) (old Location, hadOld bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	old, hadOld = ix.m[key]
	if hadOld {
		delete(ix.m, key)
	}
	return old, hadOld
}

// compareAndRetarget updates key's Location to newLoc only if it still
// points at oldLoc, the per-key atomic step compaction relies on (spec
// §4.C step 2): a concurrent Set/Remove that ran between the compactor
// reading the old location and retargeting it wins, and the compactor's
// stale copy is simply discarded.
func (ix *index) compareAndRetarget(key string, oldLoc, newLoc Location) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	cur, ok := ix.m[key]
	if !ok || cur != oldLoc {
		return false
	}
	ix.m[key] = newLoc
	return true
}

func (ix *index) len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.m)
}

// snapshot returns a point-in-time copy of key -> Location, used by
// compaction to decide what to copy forward without holding the index
// lock for the duration of the rewrite.
func (ix *index) snapshot() map[string]Location {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string]Location, len(ix.m))
	for k, v := range ix.m {
		out[k] = v
	}
	return out
}
