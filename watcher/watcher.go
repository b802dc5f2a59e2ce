// Package watcher follows the guild's event log: it replays history from a
// persisted cursor, then handles newly appended logs as they arrive.
package watcher

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/axiomesh/moloch/eventlog"
	"github.com/axiomesh/moloch/state"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	LogChanMaxSize = 1000

	resubscribeAttempts = 5
)

var (
	nextFromBlockKey = state.Key("watcher", "nextFromBlock")
	nextLogIndexKey  = state.Key("watcher", "nextLogIndex")
)

// Handler is called once per log, in log order.
type Handler func(ev eventlog.Event, lg types.Log) error

type Watcher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	client  Client
	decoder Decoder
	db      state.Store
	logger  logrus.FieldLogger
	handler Handler

	query   ethereum.FilterQuery
	logChan chan types.Log
	logSub  ethereum.Subscription

	// RetryBase is the first backoff step when resubscribing.
	RetryBase time.Duration

	mu   sync.Mutex
	done chan struct{}
}

func New(ctx context.Context, client Client, decoder Decoder, db state.Store, query ethereum.FilterQuery, logger logrus.FieldLogger, handler Handler) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	return &Watcher{
		ctx:       ctx,
		cancel:    cancel,
		client:    client,
		decoder:   decoder,
		db:        db,
		logger:    logger,
		handler:   handler,
		query:     query,
		logChan:   make(chan types.Log, LogChanMaxSize),
		RetryBase: 5 * time.Second,
		done:      make(chan struct{}),
	}
}

// Start subscribes before replaying history so nothing appended in between
// is lost; logs seen twice are dropped by the cursor.
func (w *Watcher) Start() error {
	if err := w.subscribeLog(); err != nil {
		return errors.Wrap(err, "subscribe logs")
	}
	if err := w.fetchHistoryLog(); err != nil {
		w.logSub.Unsubscribe()
		return errors.Wrap(err, "fetch history logs")
	}

	go w.listenEvents()
	return nil
}

func (w *Watcher) Stop() error {
	w.cancel()
	<-w.done
	return nil
}

// Cursor returns the index of the next log to handle.
func (w *Watcher) Cursor() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return state.GetUint64(w.db, nextLogIndexKey)
}

func (w *Watcher) fetchHistoryLog() error {
	q := w.query
	q.FromBlock = w.getNewestFromBlock()

	logs, err := w.client.FilterLogs(w.ctx, q)
	if err != nil {
		return err
	}
	w.logger.Debugf("replaying %d logs from block %v", len(logs), q.FromBlock)

	for _, lg := range logs {
		w.handleLog(lg)
	}
	return nil
}

func (w *Watcher) subscribeLog() error {
	var err error
	w.logSub, err = w.client.SubscribeFilterLogs(w.ctx, w.query, w.logChan)
	return err
}

func (w *Watcher) getNewestFromBlock() *big.Int {
	from := w.query.FromBlock
	stored := state.GetUint64(w.db, nextFromBlockKey)
	if stored > 0 && (from == nil || new(big.Int).SetUint64(stored).Cmp(from) > 0) {
		from = new(big.Int).SetUint64(stored)
	}
	return from
}

func (w *Watcher) handleLog(lg types.Log) {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := state.GetUint64(w.db, nextLogIndexKey)
	if uint64(lg.Index) < next {
		return
	}

	ev, err := w.decoder.Decode(lg)
	if err != nil {
		w.logger.Errorf("decode log %d error: %s", lg.Index, err)
	} else if err := w.handler(ev, lg); err != nil {
		w.logger.WithField("event", ev.Name).Errorf("handle log %d error: %s", lg.Index, err)
	}

	cursor := state.NewJournal(w.db)
	state.PutUint64(cursor, nextFromBlockKey, lg.BlockNumber)
	state.PutUint64(cursor, nextLogIndexKey, uint64(lg.Index)+1)
	cursor.Commit()
}

func (w *Watcher) listenEvents() {
	defer close(w.done)
	w.logger.Info("listen events")

	for {
		select {
		case <-w.ctx.Done():
			w.logSub.Unsubscribe()
			w.logger.Info("context done")
			return
		case lg := <-w.logChan:
			w.handleLog(lg)
		case err := <-w.logSub.Err():
			if w.ctx.Err() != nil {
				continue
			}
			w.logger.Warnf("subscription dropped: %v", err)
			if err := w.resubscribe(); err != nil {
				w.logger.Errorf("resubscribe error: %s", err)
				return
			}
		}
	}
}

// resubscribe restores the subscription and catches up on what was missed.
func (w *Watcher) resubscribe() error {
	action := func(attempt uint) error {
		if err := w.subscribeLog(); err != nil {
			return err
		}
		if err := w.fetchHistoryLog(); err != nil {
			w.logSub.Unsubscribe()
			return err
		}
		return nil
	}
	return retry.Retry(action, strategy.Limit(resubscribeAttempts), strategy.Backoff(backoff.Fibonacci(w.RetryBase)))
}
