package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/moloch/core"
	"github.com/axiomesh/moloch/eventlog"
	"github.com/axiomesh/moloch/repo"
	"github.com/axiomesh/moloch/token"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

type guild struct {
	store  repo.Store
	events *eventlog.Log
	logger *logrus.Logger
}

func openGuild(r *repo.Repo) (*guild, error) {
	logger := log.New()
	logger.SetLevel(log.ParseLevel(r.Config.Log.Level))

	store, err := repo.OpenStore(r.Config)
	if err != nil {
		return nil, err
	}
	events, err := eventlog.New(store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &guild{store: store, events: events, logger: logger}, nil
}

// backend wires the repo store to the engine. Token balances live in memory
// for the lifetime of the process.
func (g *guild) backend() core.Backend {
	return core.Backend{
		Store:  g.store,
		Token:  token.NewLedger(),
		Events: g.events,
		Logger: g.logger,
	}
}

func (g *guild) Close() error {
	return g.store.Close()
}

func summon(ctx *cli.Context) error {
	r, err := loadExisting(ctx)
	if err != nil {
		return err
	}
	g, err := openGuild(r)
	if err != nil {
		return err
	}
	defer g.Close()

	engine, err := core.Summon(g.backend(), r.Params, r.Summoner, time.Now())
	if err != nil {
		return fmt.Errorf("summon guild: %w", err)
	}

	fmt.Printf("guild summoned at %s\n", engine.Address().Hex())
	fmt.Printf("guild bank: %s\n", engine.BankAddress().Hex())
	return nil
}

func status(ctx *cli.Context) error {
	r, err := loadExisting(ctx)
	if err != nil {
		return err
	}
	g, err := openGuild(r)
	if err != nil {
		return err
	}
	defer g.Close()

	engine, err := core.Open(g.backend())
	if err != nil {
		return fmt.Errorf("open guild: %w", err)
	}

	params := engine.Params()
	period, err := engine.CurrentPeriod(time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("guild:                  %s\n", engine.Address().Hex())
	fmt.Printf("guild bank:             %s\n", engine.BankAddress().Hex())
	fmt.Printf("approved token:         %s\n", params.ApprovedToken.Hex())
	fmt.Printf("summoning time:         %s\n", engine.SummoningTime().UTC().Format(time.RFC3339))
	fmt.Printf("current period:         %d\n", period)
	fmt.Printf("total shares:           %s\n", engine.TotalShares().ToBig())
	fmt.Printf("total shares requested: %s\n", engine.TotalSharesRequested().ToBig())
	fmt.Printf("proposal queue length:  %d\n", engine.ProposalQueueLength())
	fmt.Printf("events:                 %d\n", g.events.Len())
	return nil
}

func listEvents(ctx *cli.Context) error {
	r, err := loadExisting(ctx)
	if err != nil {
		return err
	}
	g, err := openGuild(r)
	if err != nil {
		return err
	}
	defer g.Close()

	q := r.Filter
	if from := ctx.Uint64("from"); from > 0 {
		q.FromBlock = new(big.Int).SetUint64(from)
	}

	logs, err := g.events.FilterLogs(context.Background(), q)
	if err != nil {
		return err
	}
	for _, lg := range logs {
		ev, err := g.events.Decode(lg)
		if err != nil {
			return fmt.Errorf("decode log %d: %w", lg.Index, err)
		}
		fmt.Printf("#%d batch=%d %s %s %v\n", lg.Index, lg.BlockNumber, ev.Source.Hex(), ev.Name, ev.Args)
	}
	return nil
}
