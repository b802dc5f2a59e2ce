package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/moloch"
	"github.com/axiomesh/moloch/core"
	"github.com/axiomesh/moloch/eventlog"
	"github.com/axiomesh/moloch/metrics"
	"github.com/axiomesh/moloch/watcher"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func start(ctx *cli.Context) error {
	r, err := loadExisting(ctx)
	if err != nil {
		return err
	}

	err = log.Initialize(
		log.WithReportCaller(r.Config.Log.ReportCaller),
		log.WithPersist(true),
		log.WithFilePath(r.LogsPath()),
		log.WithFileName(r.Config.Log.Filename),
		log.WithMaxAge(r.Config.Log.MaxAge),
		log.WithRotationTime(r.Config.Log.RotationTime),
	)
	if err != nil {
		return fmt.Errorf("log initialize: %w", err)
	}

	printVersion()

	g, err := openGuild(r)
	if err != nil {
		return err
	}
	engine, err := core.Open(g.backend())
	if err != nil {
		_ = g.Close()
		return fmt.Errorf("open guild: %w", err)
	}

	// The store is locked by this process, so the watcher indexes the logs
	// already persisted and then waits for logs appended by this process.
	logger := g.logger.WithField("module", "watcher")
	w := watcher.New(ctx.Context, g.events, g.events, g.store, r.Filter, logger, func(ev eventlog.Event, lg types.Log) error {
		logger.WithField("batch", lg.BlockNumber).Infof("%s %v", ev.Name, ev.Args)
		return nil
	})

	if r.Config.Metrics.Enable {
		metrics.RegisterMetrics()
		metrics.RecordShares(engine.TotalShares(), engine.TotalSharesRequested())
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(r.Config.Metrics.Listen, nil); err != nil {
				g.logger.Errorf("metrics server: %s", err)
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	handleShutdown(w, g, &wg)

	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher failed: %w", err)
	}

	fmt.Printf("=============Moloch guild %s is ready=============\n", engine.Address().Hex())

	wg.Wait()

	return nil
}

func printVersion() {
	fmt.Printf("Moloch version: %s-%s-%s\n", moloch.CurrentVersion, moloch.CurrentBranch, moloch.CurrentCommit)
	fmt.Printf("App build date: %s\n", moloch.BuildDate)
	fmt.Printf("System version: %s\n", moloch.Platform)
	fmt.Printf("Golang version: %s\n", moloch.GoVersion)
	fmt.Println()
}

func handleShutdown(w *watcher.Watcher, g *guild, wg *sync.WaitGroup) {
	var stop = make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM)
	signal.Notify(stop, syscall.SIGINT)

	go func() {
		<-stop
		fmt.Println("received interrupt signal, shutting down...")
		if err := w.Stop(); err != nil {
			panic(err)
		}
		if err := g.Close(); err != nil {
			panic(err)
		}
		wg.Done()
		os.Exit(0)
	}()
}
