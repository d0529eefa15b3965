// Command pepperstats is a thin entrypoint wiring configuration,
// logging, and the cache-wrapped backend into one report run. It is
// not a reporting UI: the embedded scripting runtime that would
// normally drive callbacks over the resulting Revisions is out of
// scope, so this binary exists to exercise the engine end to end and
// print a one-line summary per revision.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pepperstats/pepperstats/internal/buildinfo"
	"github.com/pepperstats/pepperstats/internal/cache"
	"github.com/pepperstats/pepperstats/internal/config"
	"github.com/pepperstats/pepperstats/internal/driver"
	"github.com/pepperstats/pepperstats/internal/observability"
	"github.com/pepperstats/pepperstats/internal/vcs"
	"github.com/pepperstats/pepperstats/internal/vcs/gitcli"
	"github.com/pepperstats/pepperstats/internal/vcs/gitnative"
)

func main() {
	repoPath := flag.String("repo", ".", "path to the repository to report on")
	branch := flag.String("branch", "", "branch to walk (default: repository's main branch)")
	configPath := flag.String("config", "", "path to a pepperstats config file")
	native := flag.Bool("native", false, "use the in-process go-git backend instead of the subprocess one")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.VersionWithTags())
		return
	}

	logger, err := observability.NewLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pepperstats: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	var backend vcs.Backend
	if *native {
		backend, err = gitnative.Open(*repoPath)
	} else {
		backend, err = gitcli.Open(*repoPath, cfg.Git.ExecutablePath, gitcli.Options{
			MetaWorkers:   cfg.Prefetcher.MetaWorkers,
			DiffWorkers:   cfg.Prefetcher.DiffWorkers,
			MetaBatchSize: cfg.Prefetcher.MetaBatchSize,
			QueueCapacity: cfg.Prefetcher.QueueCapacity,
			Metrics:       metrics,
		}, logger)
	}
	if err != nil {
		logger.Fatal("failed to open backend", zap.Error(err))
	}

	cachedBackend, err := cache.Open(cfg.Cache.RootDir, backend, logger,
		cache.WithMetrics(metrics), cache.WithSegmentSize(cfg.Cache.MaxSegmentSizeBytes))
	if err != nil {
		logger.Fatal("failed to open cache", zap.Error(err))
	}

	branchName := *branch
	if branchName == "" {
		branchName, err = cachedBackend.MainBranch()
		if err != nil {
			logger.Fatal("failed to resolve main branch", zap.Error(err))
		}
	}

	d := driver.New(cachedBackend, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, terminating run")
		d.Terminate()
	}()

	err = d.Run(branchName, 0, 0, func(rev vcs.Revision) error {
		fmt.Printf("%s\t%s\t%s\n", rev.ID, rev.Author, firstLine(rev.Message))
		return nil
	})
	if err != nil && err != driver.ErrTerminated {
		log.Fatalf("pepperstats: run failed: %v", err)
	}
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
