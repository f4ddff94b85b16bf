package kds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"kitchen-display/internal/kds/adapter/notifier"
	"kitchen-display/internal/kds/adapter/queue"
	"kitchen-display/internal/kds/adapter/remote"
	"kitchen-display/internal/kds/adapter/replica"
	"kitchen-display/internal/kds/api/http"
	"kitchen-display/internal/kds/api/http/handle"
	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/app/services"
	"kitchen-display/pkg/config"
	"kitchen-display/pkg/db"
	"kitchen-display/pkg/logger"
	"kitchen-display/pkg/rabbitmq"
	"kitchen-display/pkg/sqlite"

	"golang.org/x/sync/errgroup"
)

type params struct {
	kdsParams  *core.KDSParams
	configPath string
	cfg        *config.Config
}

// Execute starts the kitchen display engine and its HTTP surface
func Execute(ctx context.Context, mylog logger.Logger, args []string) error {
	newCtx, cancel := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	params, err := parseParams(args)
	if err != nil {
		if !errors.Is(err, core.ErrHelp) {
			mylog.Action("command_parse_failed").Error("Invalid command received", err)
		}
		return err
	}
	mylog.Action("command_parse_completed").Debug("Received params", "config_path", params.configPath, "no_remote", params.kdsParams.NoRemote)

	if err := validateParams(params); err != nil {
		mylog.Action("command_validation_failed").Error("Invalid command received", err)
		return err
	}
	mylog = logger.NewLogger("kds", params.cfg.Log.Level)
	mylog.Action("command_validation_completed").Info("Successfully validate params")

	return run(newCtx, params, mylog)
}

func run(ctx context.Context, params *params, mylog logger.Logger) error {
	cfg := params.cfg
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	local, err := sqlite.Open(cfg.Local.Path)
	if err != nil {
		mylog.Action("local_db_failed").Error("Failed to open local replica", err, "path", cfg.Local.Path)
		return err
	}
	defer local.Close()

	store, err := replica.New(local)
	if err != nil {
		return err
	}

	var (
		gateway core.IRemote   = remote.Offline{}
		notify  core.INotifier = notifier.NewLogNotifier(mylog)
	)

	if !params.kdsParams.NoRemote {
		pool, err := db.ConnectDB(ctx, &cfg.DB, mylog)
		if pool == nil {
			mylog.Action("db_connection_failed").Error("Failed to configure remote database", err)
			return err
		}
		defer pool.Close()

		var broker remote.Broker
		notifyQueue := ""
		if cfg.Notify.Enabled {
			notifyQueue = cfg.Notify.Queue
		}
		mb, err := rabbitmq.ConnectRabbitMQ(&cfg.RMQ, notifyQueue, mylog)
		if err != nil {
			mylog.Action("mb_connection_failed").Warn("Message broker unreachable, realtime changes disabled", "error", err.Error())
		} else {
			defer mb.Close()
			broker = mb
			if cfg.Notify.Enabled {
				notify = notifier.NewSMSNotifier(mb, cfg.Notify.Queue, mylog)
			}
		}

		gateway = remote.NewGateway(pool, broker, mylog)
	} else {
		mylog.Action("remote_disabled").Info("Running without a remote store")
	}

	dispatcher := services.NewDispatcher(gateway)
	actions, err := queue.New(local, dispatcher, cfg.Sync.OfflinePrefix, mylog)
	if err != nil {
		return err
	}

	svc := services.NewSyncService(services.SyncConfig{
		BusinessID:    cfg.Sync.BusinessID,
		Location:      loc,
		DayStartHour:  cfg.Sync.BusinessDayStart,
		OfflinePrefix: cfg.Sync.OfflinePrefix,
	}, store, actions, gateway, dispatcher, services.NewNotificationTrigger(notify, mylog), mylog)
	defer svc.Close()

	if params.kdsParams.PullFirst {
		if _, err := svc.Pull(ctx); err != nil {
			mylog.Action("initial_pull_failed").Warn("Starting from local replica", "error", err.Error())
		}
	}

	engine := services.NewEngine(svc, gateway, services.Intervals{
		Debounce: cfg.Sync.Debounce,
		Pull:     cfg.Sync.PullInterval,
		Drain:    cfg.Sync.DrainInterval,
		Probe:    cfg.Sync.ProbeInterval,
	}, mylog)

	server := http.NewServer(params.kdsParams.Port, handle.NewKDSHandler(svc, loc, mylog), mylog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		mylog.Action("kds_failed").Error("Kitchen display stopped unexpectedly", err)
		return err
	}
	mylog.Action("kds_stopped").Info("Kitchen display stopped")
	return nil
}

// Helper functions to validate cli params

// parseParams parse params from terminal
func parseParams(args []string) (*params, error) {
	fs := flag.NewFlagSet("kds", flag.ContinueOnError)
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config-path", "config.yaml", "path for config yaml")

	port := fs.Int("port", 0, "HTTP port, overrides http.port")
	noRemote := fs.Bool("no-remote", false, "Run on the local replica only")
	pullFirst := fs.Bool("pull-first", true, "Pull the current business day before serving")

	if err := fs.Parse(args); err != nil {
		return nil, errors.New("cannot parse arguments")
	}

	if *showHelp {
		fs.Usage()
		return nil, core.ErrHelp
	}

	return &params{
		kdsParams: &core.KDSParams{
			Port:      *port,
			NoRemote:  *noRemote,
			PullFirst: *pullFirst,
		},
		configPath: *configPath,
	}, nil
}

// validateParams validates params
func validateParams(params *params) error {
	cfg, err := config.LoadConfig(params.configPath)
	if err != nil {
		return err
	}
	params.cfg = cfg

	kdsParams := params.kdsParams
	if kdsParams.Port == 0 {
		kdsParams.Port = cfg.HTTP.Port
	}
	if kdsParams.Port <= 0 || kdsParams.Port >= 65536 {
		return fmt.Errorf("port must be in [0: 65,535]: %d", kdsParams.Port)
	}

	return nil
}
