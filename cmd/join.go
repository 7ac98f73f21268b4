package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qrave1/roomspeak-mesh/internal/application/config"
	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/application/metric"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/capture"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/memory"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/postgres"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/redis"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/rtc"
	"github.com/qrave1/roomspeak-mesh/internal/infra/ports/http/handlers"
	"github.com/qrave1/roomspeak-mesh/internal/infra/ports/http/server"
	"github.com/qrave1/roomspeak-mesh/internal/infra/ports/tui"
	"github.com/qrave1/roomspeak-mesh/internal/usecase"
)

var (
	roomFlag string
	nameFlag string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a voice room and stay connected until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runApp(cmd.Context()); err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&roomFlag, "room", "", "room name (overrides ROOM)")
	rootCmd.PersistentFlags().StringVar(&nameFlag, "name", "", "screen name (overrides SCREEN_NAME)")

	rootCmd.AddCommand(joinCmd)
}

func runApp(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// завершение процесса равносильно выходу из комнаты
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stderr,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	if roomFlag != "" {
		cfg.Room = roomFlag
	}

	if nameFlag != "" {
		cfg.ScreenName = nameFlag
	}

	printer := tui.NewPrinter(os.Stdout)

	store, err := newDocumentStore(ctx, cfg)
	if err != nil {
		printer.PrintError(err)
		slog.Error("open document store", slog.Any(constant.Error, err), slog.String(constant.Driver, cfg.StoreDriver))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("close document store", slog.Any(constant.Error, err))
		}
	}()

	device, err := capture.NewDevice(cfg.Media.Device)
	if err != nil {
		printer.PrintError(err)
		return err
	}

	sinks, err := capture.NewSinkFactory(cfg.Media.OutputDir)
	if err != nil {
		slog.Error("create audio sinks", slog.Any(constant.Error, err))
		return err
	}

	factory, err := rtc.NewFactory(cfg.ICE.Servers())
	if err != nil {
		slog.Error("create peer connection factory", slog.Any(constant.Error, err))
		return err
	}

	signalingUsecase := usecase.NewSignalingUsecase(store)
	mediaUsecase := usecase.NewMediaUsecase(device)
	sessionUsecase := usecase.NewSessionUsecase(signalingUsecase, mediaUsecase, factory, sinks)

	go printer.Run(ctx, sessionUsecase.Presence())

	if err = sessionUsecase.JoinRoom(ctx, cfg.Room, cfg.ScreenName); err != nil {
		printer.PrintError(err)

		if domain.IsMediaError(err) {
			slog.Error("acquire local media", slog.Any(constant.Error, err), slog.String(constant.Device, cfg.Media.Device))
		} else {
			slog.Error("join room", slog.Any(constant.Error, err), slog.String(constant.RoomID, cfg.Room))
		}

		return err
	}

	defer func() {
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer leaveCancel()

		sessionUsecase.LeaveRoom(leaveCtx)
	}()

	wsConnRepo := memory.NewWSConnectionRepository()

	presenceHandler := handlers.NewPresenceHandler(sessionUsecase)
	iceHandler := handlers.NewIceHandler(cfg)
	wsHandler := handlers.NewWebSocketHandler(cfg, sessionUsecase.Presence(), wsConnRepo)

	go wsHandler.Run(ctx)

	echoSrv := server.New(cfg, presenceHandler, iceHandler, wsHandler)

	metricsSrv := metric.NewServer(func() metric.HealthReport {
		status := sessionUsecase.Status()

		return metric.HealthReport{
			Joined:        status.Joined,
			Room:          status.RoomID,
			PeerSessions:  len(sessionUsecase.Sessions()),
			Subscriptions: sessionUsecase.ActiveSubscriptions(),
		}
	})

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	// API управления доступно только локально
	go func() {
		echoSrvCh <- echoSrv.Start("127.0.0.1:" + cfg.ControlPort)
	}()

	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down due to context cancel")
	case err := <-echoSrvCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Control server failed", slog.Any(constant.Error, err))
		}
	case err := <-metricsSrvCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", slog.Any(constant.Error, err))
		}
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown control server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}

	return nil
}

func newDocumentStore(ctx context.Context, cfg *config.Config) (domain.DocumentStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverRedis:
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}

		return redis.NewDocumentStore(client), nil
	case config.StoreDriverPostgres:
		db, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, err
		}

		return postgres.NewDocumentStore(db, cfg.Postgres.DSN()), nil
	case config.StoreDriverMemory:
		slog.Warn("memory store is local to this process, peers in other processes are not visible")

		return memory.NewDocumentStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
