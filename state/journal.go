package state

import "github.com/axiomesh/axiom-kit/storage"

// Batcher is implemented by stores that apply a group of writes atomically,
// such as axiom-kit's leveldb storage and SQLiteStore.
type Batcher interface {
	NewBatch() storage.Batch
}

// Journal buffers writes on top of a base store. Reads see the buffered
// writes first. Nothing reaches the base store until Commit.
type Journal struct {
	base  Store
	dirty map[string][]byte
	order []string
}

func NewJournal(base Store) *Journal {
	return &Journal{
		base:  base,
		dirty: make(map[string][]byte),
	}
}

func (j *Journal) Get(key []byte) []byte {
	if v, ok := j.dirty[string(key)]; ok {
		return v
	}
	return j.base.Get(key)
}

func (j *Journal) Put(key, value []byte) {
	k := string(key)
	if _, ok := j.dirty[k]; !ok {
		j.order = append(j.order, k)
	}
	v := make([]byte, len(value))
	copy(v, value)
	j.dirty[k] = v
}

// Len returns the number of distinct keys written.
func (j *Journal) Len() int {
	return len(j.order)
}

// Commit flushes buffered writes to the base store in first-write order and
// resets the journal. A Batcher base receives all writes in one batch.
func (j *Journal) Commit() {
	if len(j.order) == 0 {
		return
	}
	var w interface{ Put(key, value []byte) } = j.base
	batcher, ok := j.base.(Batcher)
	var batch storage.Batch
	if ok {
		batch = batcher.NewBatch()
		w = batch
	}
	for _, k := range j.order {
		w.Put([]byte(k), j.dirty[k])
	}
	if batch != nil {
		batch.Commit()
	}
	j.Discard()
}

func (j *Journal) Discard() {
	j.dirty = make(map[string][]byte)
	j.order = nil
}
