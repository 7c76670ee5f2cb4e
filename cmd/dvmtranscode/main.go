package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dbehnke/dvmtranscode/internal/config"
	"github.com/dbehnke/dvmtranscode/internal/database"
	"github.com/dbehnke/dvmtranscode/internal/host"
	"github.com/dbehnke/dvmtranscode/internal/logging"
	"github.com/dbehnke/dvmtranscode/internal/lookup"
	"github.com/dbehnke/dvmtranscode/internal/network"
	"github.com/dbehnke/dvmtranscode/internal/radioid"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath string
	var foreground bool

	rootCmd := &cobra.Command{
		Use:     "dvmtranscode",
		Short:   "Real-time DMR<->P25 voice transcoder",
		Version: fmt.Sprintf("%s (built at %s)", version, buildTime),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, foreground)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file path")
	rootCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in the foreground")
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, foreground bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("cannot read the configuration file: %w", err)
	}

	displayLevel := cfg.Log.DisplayLevel
	if cfg.Daemon && !foreground {
		// daemon mode: suppress the console sink in favor of the file sink.
		displayLevel = 5
	}

	log, err := logging.New(logging.Config{
		FilePath:     cfg.Log.FilePath,
		FileRoot:     cfg.Log.FileRoot,
		FileLevel:    cfg.Log.FileLevel,
		DisplayLevel: displayLevel,
	})
	if err != nil {
		return fmt.Errorf("unable to open the log file: %w", err)
	}
	defer log.Sync()

	log.Info(">> Protocol Transcoder", zap.String("version", version))

	srcNet, err := network.NewHomebrewEndpoint(
		cfg.SrcNetwork.Address, int(cfg.SrcNetwork.Port), int(cfg.SrcNetwork.Local),
		cfg.SrcNetwork.ID, cfg.SrcNetwork.Password,
		repeaterConfig(cfg),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize source networking: %w", err)
	}
	if err := srcNet.Open(); err != nil {
		return fmt.Errorf("failed to initialize source traffic networking: %w", err)
	}

	dstNet, err := network.NewHomebrewEndpoint(
		cfg.DstNetwork.Address, int(cfg.DstNetwork.Port), int(cfg.DstNetwork.Local),
		cfg.DstNetwork.ID, cfg.DstNetwork.Password,
		repeaterConfig(cfg),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize destination networking: %w", err)
	}
	if err := dstNet.Open(); err != nil {
		return fmt.Errorf("failed to initialize destination traffic networking: %w", err)
	}
	defer srcNet.Close()
	defer dstNet.Close()

	timing := host.Timing{
		NetTimeoutMS: int(cfg.System.Timeout) * 1000,
		JitterMS:     int(cfg.Network.Jitter),
	}
	h := host.New(srcNet, dstNet, cfg.System.TwoWayTranscode, timing, log)

	if l := buildLookup(cfg, log); l != nil {
		h.SetLookup(l)
	}

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(stop)
	}()

	log.Info("host is performing late initialization and warmup")
	h.Run(stop)

	return nil
}

// buildLookup constructs the optional DMR ID lookup backend: a
// SQLite-backed, RadioID.net-synced lookup when
// database.enabled is true, a flat-file lookup when dmrIdLookup.file is
// set, or nil (no enrichment) otherwise.
func buildLookup(cfg *config.Config, log *zap.Logger) host.Lookup {
	if cfg.Database.Enabled {
		stdLogger := stdlog.New(os.Stderr, "", stdlog.LstdFlags)
		db, err := database.NewDB(database.Config{Path: cfg.Database.Path}, stdLogger)
		if err != nil {
			log.Warn("failed to open DMR ID database, continuing without lookup enrichment", zap.Error(err))
			return nil
		}

		repo := database.NewDMRUserRepository(db.GetDB())
		adapter := lookup.NewDMRDatabaseAdapterWithConfig(repo, lookup.DMRDatabaseAdapterConfig{
			EnableCache: true,
			CacheSize:   int(cfg.Database.CacheSize),
			CacheExpiry: 5 * time.Minute,
		})
		adapter.SetLogger(log)

		syncer := radioid.NewSyncerWithConfig(repo, log, radioid.SyncerConfig{
			SyncInterval: time.Duration(cfg.Database.SyncHours) * time.Hour,
		})
		go syncer.Start(context.Background())

		return adapter
	}

	if cfg.DMRIDLookup.File != "" {
		l := lookup.NewDMRLookup(cfg.DMRIDLookup.File, cfg.DMRIDLookup.Time)
		if err := l.Start(); err != nil {
			log.Warn("failed to start DMR ID lookup file, continuing without lookup enrichment", zap.Error(err))
			return nil
		}
		return l
	}

	return nil
}

func repeaterConfig(cfg *config.Config) network.RepeaterConfig {
	return network.RepeaterConfig{
		Identity:  cfg.System.Identity,
		Latitude:  cfg.System.Info.Latitude,
		Longitude: cfg.System.Info.Longitude,
		HeightM:   int(cfg.System.Info.Height),
		Location:  cfg.System.Info.Location,
		PowerW:    uint8(cfg.System.Info.Power),
	}
}
