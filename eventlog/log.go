// Package eventlog encodes guild events as go-ethereum logs, persists them in
// the state store and serves them through the same FilterLogs and
// SubscribeFilterLogs surface an ethclient offers, so log consumers can
// index a guild exactly like an on-chain contract.
package eventlog

import (
	"context"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/axiomesh/moloch/state"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

const (
	lengthKey = "eventlog:length"
	blockKey  = "eventlog:block"

	subscriptionBuffer = 128
)

type Log struct {
	mu    sync.RWMutex
	store state.Store
	abi   abi.ABI
	feed  event.Feed
}

func New(store state.Store) (*Log, error) {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse event abi")
	}
	return &Log{
		store: store,
		abi:   parsed,
	}, nil
}

func logKey(index uint64) []byte {
	return state.Key("eventlog", strconv.FormatUint(index, 10))
}

func logBlockKey(index uint64) []byte {
	return state.Key("eventlog", strconv.FormatUint(index, 10), "block")
}

// Emit appends a single event as its own batch.
func (l *Log) Emit(ev Event) error {
	_, err := l.Append(ev)
	return err
}

// Append encodes and persists events as one batch. All events of a batch
// share a block number, which increases by one per batch.
func (l *Log) Append(evs ...Event) ([]types.Log, error) {
	return l.Commit(state.NewJournal(l.store), evs...)
}

// Commit stages evs into j as one batch and commits j, so state already
// staged in j and its events reach the store in the same write. j must be
// layered over the log's own store.
func (l *Log) Commit(j *state.Journal, evs ...Event) ([]types.Log, error) {
	logs := make([]*types.Log, 0, len(evs))
	for _, ev := range evs {
		lg, err := l.Encode(ev)
		if err != nil {
			return nil, err
		}
		logs = append(logs, lg)
	}

	l.mu.Lock()
	out, err := stage(j, logs)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	j.Commit()
	l.mu.Unlock()

	for _, lg := range out {
		l.feed.Send(lg)
	}
	return out, nil
}

func stage(j *state.Journal, logs []*types.Log) ([]types.Log, error) {
	if len(logs) == 0 {
		return nil, nil
	}
	next := state.GetUint64(j, []byte(lengthKey))
	block := state.GetUint64(j, []byte(blockKey)) + 1
	out := make([]types.Log, 0, len(logs))
	for _, lg := range logs {
		lg.Index = uint(next)
		lg.BlockNumber = block
		data, err := rlp.EncodeToBytes(lg)
		if err != nil {
			return nil, errors.Wrap(err, "rlp encode log")
		}
		j.Put(logKey(next), data)
		state.PutUint64(j, logBlockKey(next), block)
		next++
		out = append(out, *lg)
	}
	state.PutUint64(j, []byte(blockKey), block)
	state.PutUint64(j, []byte(lengthKey), next)
	return out, nil
}

// Encode turns an event into a log: topic 0 is the event id, indexed
// arguments follow as topics and the rest is ABI packed into Data.
func (l *Log) Encode(ev Event) (*types.Log, error) {
	def, ok := l.abi.Events[ev.Name]
	if !ok {
		return nil, errors.Errorf("unknown event %q", ev.Name)
	}

	topics := []common.Hash{def.ID}
	var data []interface{}
	for _, in := range def.Inputs {
		v, ok := ev.Args[in.Name]
		if !ok {
			return nil, errors.Errorf("event %s: missing argument %q", ev.Name, in.Name)
		}
		if !in.Indexed {
			data = append(data, v)
			continue
		}
		t, err := abi.MakeTopics([]interface{}{v})
		if err != nil {
			return nil, errors.Wrapf(err, "event %s: topic %q", ev.Name, in.Name)
		}
		topics = append(topics, t[0][0])
	}

	packed, err := def.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, errors.Wrapf(err, "event %s: pack", ev.Name)
	}

	return &types.Log{
		Address: ev.Source,
		Topics:  topics,
		Data:    packed,
	}, nil
}

// Decode recovers the event carried by a log. Integer arguments come back as
// *big.Int, addresses as common.Address.
func (l *Log) Decode(lg types.Log) (Event, error) {
	if len(lg.Topics) == 0 {
		return Event{}, errors.New("log has no topics")
	}
	def, err := l.abi.EventByID(lg.Topics[0])
	if err != nil {
		return Event{}, err
	}

	args := make(map[string]interface{})
	if len(lg.Data) > 0 {
		if err := def.Inputs.UnpackIntoMap(args, lg.Data); err != nil {
			return Event{}, errors.Wrapf(err, "event %s: unpack", def.Name)
		}
	}
	var indexed abi.Arguments
	for _, in := range def.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return Event{}, errors.Wrapf(err, "event %s: topics", def.Name)
	}

	return Event{Source: lg.Address, Name: def.Name, Args: args}, nil
}

// EventID returns topic 0 of the named event.
func (l *Log) EventID(name string) (common.Hash, bool) {
	def, ok := l.abi.Events[name]
	if !ok {
		return common.Hash{}, false
	}
	return def.ID, true
}

func (l *Log) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return state.GetUint64(l.store, []byte(lengthKey))
}

func (l *Log) Get(index uint64) (types.Log, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.get(index)
}

func (l *Log) get(index uint64) (types.Log, error) {
	data := l.store.Get(logKey(index))
	if len(data) == 0 {
		return types.Log{}, errors.Errorf("log %d not found", index)
	}
	var lg types.Log
	if err := rlp.DecodeBytes(data, &lg); err != nil {
		return types.Log{}, errors.Wrapf(err, "rlp decode log %d", index)
	}
	lg.Index = uint(index)
	lg.BlockNumber = state.GetUint64(l.store, logBlockKey(index))
	return lg, nil
}

// FilterLogs returns the persisted logs matching q. Block numbers are batch
// numbers; a nil bound is open.
func (l *Log) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var logs []types.Log
	n := state.GetUint64(l.store, []byte(lengthKey))
	for i := uint64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lg, err := l.get(i)
		if err != nil {
			return nil, err
		}
		if matches(q, lg) {
			logs = append(logs, lg)
		}
	}
	return logs, nil
}

// SubscribeFilterLogs delivers logs appended after the call that match q.
// Subscribers must drain ch; Append blocks until delivery.
func (l *Log) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	raw := make(chan types.Log, subscriptionBuffer)
	sub := l.feed.Subscribe(raw)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case lg := <-raw:
				if !matches(q, lg) {
					continue
				}
				select {
				case ch <- lg:
				case <-quit:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}), nil
}

func matches(q ethereum.FilterQuery, lg types.Log) bool {
	if q.FromBlock != nil && new(big.Int).SetUint64(lg.BlockNumber).Cmp(q.FromBlock) < 0 {
		return false
	}
	if q.ToBlock != nil && q.ToBlock.Sign() > 0 && new(big.Int).SetUint64(lg.BlockNumber).Cmp(q.ToBlock) > 0 {
		return false
	}
	if len(q.Addresses) > 0 {
		found := false
		for _, addr := range q.Addresses {
			if addr == lg.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Topics) > len(lg.Topics) {
		return false
	}
	for i, alternatives := range q.Topics {
		if len(alternatives) == 0 {
			continue
		}
		found := false
		for _, topic := range alternatives {
			if topic == lg.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
