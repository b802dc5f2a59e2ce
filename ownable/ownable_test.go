package ownable

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/axiomesh/moloch/eventlog"
	"github.com/axiomesh/moloch/state"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bank     = common.HexToAddress("0x0000000000000000000000000000000000001002")
	guild    = common.HexToAddress("0x0000000000000000000000000000000000001001")
	stranger = common.HexToAddress("0x330000000000000000000000000000000000ffff")
)

func setup(t *testing.T) (state.Store, *eventlog.Log) {
	db, err := leveldb.New(filepath.Join(t.TempDir(), "leveldb"))
	require.Nil(t, err)
	t.Cleanup(func() { _ = db.Close() })
	events, err := eventlog.New(db)
	require.Nil(t, err)
	return db, events
}

func TestNew(t *testing.T) {
	db, events := setup(t)

	o, err := New(db, "bank", bank, guild, events)
	require.Nil(t, err)
	assert.Equal(t, guild, o.Owner())
	assert.True(t, o.IsOwner(guild))
	assert.False(t, o.IsOwner(stranger))

	logs, err := events.FilterLogs(context.Background(), ethereum.FilterQuery{})
	require.Nil(t, err)
	require.Len(t, logs, 1)
	ev, err := events.Decode(logs[0])
	require.Nil(t, err)
	assert.Equal(t, eventlog.OwnershipTransferred, ev.Name)
	assert.Equal(t, common.Address{}, ev.Args["previousOwner"])
	assert.Equal(t, guild, ev.Args["newOwner"])

	reopened := Load(db, "bank", bank, events)
	assert.Equal(t, guild, reopened.Owner())

	_, err = New(db, "other", bank, common.Address{}, events)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestTransferOwnership(t *testing.T) {
	db, events := setup(t)
	o, err := New(db, "bank", bank, guild, events)
	require.Nil(t, err)

	assert.ErrorIs(t, o.TransferOwnership(stranger, stranger), ErrNotOwner)
	assert.ErrorIs(t, o.TransferOwnership(guild, common.Address{}), ErrInvalidAddress)
	assert.Equal(t, uint64(1), events.Len())

	require.Nil(t, o.TransferOwnership(guild, stranger))
	assert.Equal(t, stranger, o.Owner())
	assert.Equal(t, uint64(2), events.Len())
}

func TestRenounceOwnership(t *testing.T) {
	db, events := setup(t)
	o, err := New(db, "bank", bank, guild, events)
	require.Nil(t, err)

	assert.ErrorIs(t, o.RenounceOwnership(stranger), ErrNotOwner)
	require.Nil(t, o.RenounceOwnership(guild))
	assert.Equal(t, common.Address{}, o.Owner())
	assert.False(t, o.IsOwner(guild))
	assert.False(t, o.IsOwner(common.Address{}))
	assert.ErrorIs(t, o.TransferOwnership(guild, guild), ErrNotOwner)
}
