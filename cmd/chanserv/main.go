package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fgalloway/chanserv/pkg/config"
	"github.com/fgalloway/chanserv/pkg/engine"
	"github.com/fgalloway/chanserv/pkg/logging"
	"github.com/fgalloway/chanserv/pkg/store"
	"github.com/fgalloway/chanserv/pkg/store/filestore"
	"github.com/fgalloway/chanserv/pkg/store/sqlstore"
	"github.com/fgalloway/chanserv/pkg/version"
)

func main() {
	var (
		configPath     = flag.String("config", "", "YAML configuration file")
		backend        = flag.String("backend", "", "Storage backend: sqlite or file")
		dbPath         = flag.String("db", "", "SQLite database file path")
		dataDir        = flag.String("data", "", "Channel document directory (file backend)")
		channelsFile   = flag.String("channels-file", "", "YAML file of channels to ensure on startup")
		commitInterval = flag.Duration("commit-interval", 0, "Interval between commit cycles")
		logLevel       = flag.String("log-level", "", "Log level: "+logging.LevelNames())
		logFormat      = flag.String("log-format", "", "Log format: text or json")
		showVersion    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("chanserv", version.Full())
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags the user actually passed override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = config.Backend(*backend)
		case "db":
			cfg.DBPath = *dbPath
		case "data":
			cfg.DataDir = *dataDir
		case "channels-file":
			cfg.ChannelsFile = *channelsFile
		case "commit-interval":
			cfg.CommitInterval = config.Duration(*commitInterval)
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})

	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	st, idx, err := openBackend(cfg)
	if err != nil {
		slog.Error("failed to open backend", "backend", cfg.Backend, "err", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()
	defer func() { _ = idx.Close() }()

	if cfg.ChannelsFile != "" {
		seed, err := config.LoadSeedFile(cfg.ChannelsFile)
		if err != nil {
			slog.Error("failed to load channel seed file", "path", cfg.ChannelsFile, "err", err)
			os.Exit(1)
		}
		if err := seed.Apply(st, idx); err != nil {
			slog.Error("failed to seed channels", "err", err)
			os.Exit(1)
		}
	}

	slog.Info("chanserv running",
		"version", version.String(),
		"backend", cfg.Backend,
		"commit_interval", cfg.CommitInterval.Std(),
	)

	done := make(chan struct{})
	go commitLoop(st, cfg.CommitInterval.Std(), done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	close(done)
	// Flush whatever is still queued before the stores close.
	if err := st.CommitChanges(); err != nil {
		slog.Error("final commit failed", "err", err)
	}
}

func openBackend(cfg config.Config) (store.ChannelStore, store.ChannelIndex, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		sqlStore, err := sqlstore.New(cfg.DBPath, cfg.IdleTimeout.Std())
		if err != nil {
			return nil, nil, err
		}
		idx, err := sqlstore.NewIndex(sqlStore)
		if err != nil {
			_ = sqlStore.Close()
			return nil, nil, err
		}
		return engine.New(sqlStore), idx, nil

	case config.BackendFile:
		fileStore, err := filestore.New(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		idx, err := filestore.NewIndex(fileStore)
		if err != nil {
			_ = fileStore.Close()
			return nil, nil, err
		}
		return fileStore, idx, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// commitLoop drives the periodic commit cycle until done closes.
func commitLoop(st store.ChannelStore, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := st.CommitChanges(); err != nil {
				slog.Error("commit cycle failed", "err", err)
			}
		}
	}
}
