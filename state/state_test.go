package state

import (
	"path/filepath"
	"testing"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLevelDB(t *testing.T) Store {
	db, err := leveldb.New(filepath.Join(t.TempDir(), "leveldb"))
	require.Nil(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSQLite(t *testing.T) Store {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.Nil(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestFieldCodec(t *testing.T) {
	backends := map[string]func(*testing.T) Store{
		"leveldb": newLevelDB,
		"sqlite":  newSQLite,
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			addr := common.HexToAddress("0x110000000000000000000000000000000000ffff")

			assert.True(t, GetUint256(s, Key("missing")).IsZero())
			assert.Equal(t, common.Address{}, GetAddress(s, Key("missing")))
			assert.False(t, GetBool(s, Key("missing")))

			big := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
			PutUint256(s, Key("member", addr.Hex(), "shares"), big)
			PutUint64(s, Key("queue", "length"), 42)
			PutInt64(s, Key("summoningTime"), -7)
			PutBool(s, Key("flag"), true)
			PutAddress(s, Key("owner"), addr)
			PutString(s, Key("details"), "hello guild")

			assert.True(t, big.Eq(GetUint256(s, Key("member", addr.Hex(), "shares"))))
			assert.Equal(t, uint64(42), GetUint64(s, Key("queue", "length")))
			assert.Equal(t, int64(-7), GetInt64(s, Key("summoningTime")))
			assert.True(t, GetBool(s, Key("flag")))
			assert.Equal(t, addr, GetAddress(s, Key("owner")))
			assert.Equal(t, "hello guild", GetString(s, Key("details")))

			PutUint64(s, Key("queue", "length"), 43)
			assert.Equal(t, uint64(43), GetUint64(s, Key("queue", "length")))
		})
	}
}

func TestJournal(t *testing.T) {
	base := newLevelDB(t)
	PutUint64(base, Key("a"), 1)

	j := NewJournal(base)
	PutUint64(j, Key("a"), 2)
	PutUint64(j, Key("b"), 3)
	PutUint64(j, Key("a"), 4)
	assert.Equal(t, 2, j.Len())

	assert.Equal(t, uint64(4), GetUint64(j, Key("a")))
	assert.Equal(t, uint64(1), GetUint64(base, Key("a")))
	assert.Nil(t, base.Get(Key("b")))

	j.Discard()
	assert.Equal(t, uint64(1), GetUint64(j, Key("a")))

	PutUint64(j, Key("b"), 5)
	j.Commit()
	assert.Equal(t, 0, j.Len())
	assert.Equal(t, uint64(5), GetUint64(base, Key("b")))
}

// countingStore records how writes reach the base store.
type countingStore struct {
	Store
	batcher Batcher
	puts    int
	commits int
}

func (c *countingStore) Put(key, value []byte) {
	c.puts++
	c.Store.Put(key, value)
}

func (c *countingStore) NewBatch() storage.Batch {
	return &countingBatch{Batch: c.batcher.NewBatch(), store: c}
}

type countingBatch struct {
	storage.Batch
	store *countingStore
}

func (b *countingBatch) Commit() {
	b.store.commits++
	b.Batch.Commit()
}

func TestJournalCommitBatch(t *testing.T) {
	backends := map[string]func(*testing.T) Store{
		"leveldb": newLevelDB,
		"sqlite":  newSQLite,
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			db := open(t)
			batcher, ok := db.(Batcher)
			require.True(t, ok)
			base := &countingStore{Store: db, batcher: batcher}

			j := NewJournal(base)
			j.Commit()
			assert.Equal(t, 0, base.commits)

			PutUint64(j, Key("processed"), 1)
			PutUint64(j, Key("totalShares"), 6)
			j.Commit()
			assert.Equal(t, 0, base.puts)
			assert.Equal(t, 1, base.commits)
			assert.Equal(t, uint64(1), GetUint64(db, Key("processed")))
			assert.Equal(t, uint64(6), GetUint64(db, Key("totalShares")))
		})
	}
}

func TestSQLiteBatch(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.Nil(t, err)
	defer db.Close()

	PutUint64(db, Key("a"), 1)
	b := db.NewBatch()
	b.Put(Key("b"), []byte("2"))
	b.Delete(Key("a"))
	assert.Nil(t, db.Get(Key("b")))
	b.Commit()

	assert.Nil(t, db.Get(Key("a")))
	assert.Equal(t, uint64(2), GetUint64(db, Key("b")))
}
