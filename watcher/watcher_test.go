package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/axiomesh/moloch/eventlog"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	guild    = common.HexToAddress("0x0000000000000000000000000000000000001001")
	summoner = common.HexToAddress("0x110000000000000000000000000000000000ffff")
	member   = common.HexToAddress("0x220000000000000000000000000000000000ffff")
)

func collect(ch chan string) Handler {
	return func(ev eventlog.Event, lg types.Log) error {
		ch <- ev.Name
		return nil
	}
}

func next(t *testing.T, ch chan string) string {
	select {
	case name := <-ch:
		return name
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func TestWatcher(t *testing.T) {
	db, err := leveldb.New(filepath.Join(t.TempDir(), "leveldb"))
	require.Nil(t, err)
	defer db.Close()

	events, err := eventlog.New(db)
	require.Nil(t, err)

	_, err = events.Append(
		eventlog.NewSummonComplete(guild, summoner, uint256.NewInt(1)),
		eventlog.NewSubmitProposal(guild, 0, summoner, summoner, member, uint256.NewInt(50), uint256.NewInt(5)),
	)
	require.Nil(t, err)

	logger := log.New()
	logger.SetLevel(log.ParseLevel("debug"))

	ch := make(chan string, 10)
	w := New(context.Background(), events, events, db, ethereum.FilterQuery{}, logger, collect(ch))
	require.Nil(t, w.Start())

	assert.Equal(t, eventlog.SummonComplete, next(t, ch))
	assert.Equal(t, eventlog.SubmitProposal, next(t, ch))
	assert.EqualValues(t, 2, w.Cursor())

	require.Nil(t, events.Emit(eventlog.NewSubmitVote(guild, 0, summoner, summoner, 1)))
	assert.Equal(t, eventlog.SubmitVote, next(t, ch))
	require.Nil(t, w.Stop())
	assert.EqualValues(t, 3, w.Cursor())

	// a restarted watcher resumes after the last handled log
	require.Nil(t, events.Emit(eventlog.NewUpdateDelegateKey(guild, member, summoner)))
	w = New(context.Background(), events, events, db, ethereum.FilterQuery{}, logger, collect(ch))
	require.Nil(t, w.Start())
	defer w.Stop()

	assert.Equal(t, eventlog.UpdateDelegateKey, next(t, ch))
	select {
	case name := <-ch:
		t.Fatalf("unexpected replay of %s", name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherFilter(t *testing.T) {
	db, err := leveldb.New(filepath.Join(t.TempDir(), "leveldb"))
	require.Nil(t, err)
	defer db.Close()

	events, err := eventlog.New(db)
	require.Nil(t, err)

	voteID, ok := events.EventID(eventlog.SubmitVote)
	require.True(t, ok)

	ch := make(chan string, 10)
	w := New(context.Background(), events, events, db, ethereum.FilterQuery{
		Topics: [][]common.Hash{{voteID}},
	}, log.New(), collect(ch))
	require.Nil(t, w.Start())
	defer w.Stop()

	_, err = events.Append(
		eventlog.NewSubmitProposal(guild, 0, summoner, summoner, member, uint256.NewInt(50), uint256.NewInt(5)),
		eventlog.NewSubmitVote(guild, 0, summoner, summoner, 2),
	)
	require.Nil(t, err)

	assert.Equal(t, eventlog.SubmitVote, next(t, ch))
	select {
	case name := <-ch:
		t.Fatalf("unexpected event %s", name)
	case <-time.After(100 * time.Millisecond):
	}
}

// droppingSub reports an error of the test's choosing instead of the
// underlying subscription's.
type droppingSub struct {
	ethereum.Subscription
	err chan error
}

func (s *droppingSub) Err() <-chan error {
	return s.err
}

// droppingClient serves the event log and can cut the live subscription,
// refusing the next failNext subscribe calls afterwards.
type droppingClient struct {
	*eventlog.Log

	mu       sync.Mutex
	subs     []*droppingSub
	calls    int
	failNext int
}

func (c *droppingClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failNext > 0 {
		c.failNext--
		return nil, errors.New("connection refused")
	}
	inner, err := c.Log.SubscribeFilterLogs(ctx, q, ch)
	if err != nil {
		return nil, err
	}
	sub := &droppingSub{Subscription: inner, err: make(chan error, 1)}
	c.subs = append(c.subs, sub)
	return sub, nil
}

func (c *droppingClient) drop(failNext int) {
	c.mu.Lock()
	sub := c.subs[len(c.subs)-1]
	c.failNext = failNext
	c.mu.Unlock()

	sub.Subscription.Unsubscribe()
	sub.err <- errors.New("connection reset")
}

func (c *droppingClient) subscribeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestWatcherResubscribe(t *testing.T) {
	db, err := leveldb.New(filepath.Join(t.TempDir(), "leveldb"))
	require.Nil(t, err)
	defer db.Close()

	events, err := eventlog.New(db)
	require.Nil(t, err)
	client := &droppingClient{Log: events}

	ch := make(chan string, 10)
	w := New(context.Background(), client, events, db, ethereum.FilterQuery{}, log.New(), collect(ch))
	w.RetryBase = 10 * time.Millisecond
	require.Nil(t, w.Start())
	defer w.Stop()

	require.Nil(t, events.Emit(eventlog.NewSummonComplete(guild, summoner, uint256.NewInt(1))))
	assert.Equal(t, eventlog.SummonComplete, next(t, ch))

	// appended while no subscription is live, recovered from history
	client.drop(1)
	require.Nil(t, events.Emit(eventlog.NewSubmitVote(guild, 0, summoner, summoner, 1)))
	assert.Equal(t, eventlog.SubmitVote, next(t, ch))
	require.Eventually(t, func() bool {
		return client.subscribeCalls() == 3
	}, 5*time.Second, 10*time.Millisecond)

	require.Nil(t, events.Emit(eventlog.NewUpdateDelegateKey(guild, member, summoner)))
	assert.Equal(t, eventlog.UpdateDelegateKey, next(t, ch))
	assert.EqualValues(t, 3, w.Cursor())

	select {
	case name := <-ch:
		t.Fatalf("unexpected duplicate %s", name)
	case <-time.After(100 * time.Millisecond):
	}
}
