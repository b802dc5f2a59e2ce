package watcher

import (
	"context"

	"github.com/axiomesh/moloch/eventlog"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client is the log source a Watcher follows. *eventlog.Log implements it.
type Client interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error)
}

type Decoder interface {
	Decode(lg types.Log) (eventlog.Event, error)
}

var (
	_ Client  = (*eventlog.Log)(nil)
	_ Decoder = (*eventlog.Log)(nil)
)
