package lidar

// indexer assigns stable small indices (0..n-1) to devices identified
// by an opaque string. A slot, once assigned, is never freed by a
// disconnect — only a never-before-seen identifier can claim a slot
// that's still textually empty, which is what lets a momentarily
// disconnected device reclaim the same index on reconnect (spec.md's
// index-stability scenario).
type indexer struct {
	slots []string // slots[i] == "" means free
}

func newIndexer(n int) *indexer {
	return &indexer{slots: make([]string, n)}
}

// assign returns the index for id, creating a new assignment in the
// first free slot if id hasn't been seen before.
// ok is false if every slot is occupied by a different identifier.
func (ix *indexer) assign(id string) (index int, changed, ok bool) {
	for i, s := range ix.slots {
		if s == id {
			return i, false, true
		}
	}
	for i, s := range ix.slots {
		if s == "" {
			ix.slots[i] = id
			return i, true, true
		}
	}
	return 0, false, false
}
