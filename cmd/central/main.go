package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"gamehub/handlers"
	"gamehub/internal/central"
	"gamehub/internal/database"
	"gamehub/internal/network"
	"gamehub/internal/storage"
	"gamehub/pkg/config"
	"gamehub/pkg/logger"
)

func main() {
	var (
		configFile    = flag.String("config", "", "Path to YAML configuration file")
		host          = flag.String("host", "", "Host to bind the control channel to")
		port          = flag.Int("port", 0, "Port for the control channel")
		lobbyBasePort = flag.Int("lobby-base-port", 0, "First port probed for lobby listeners")
		roomBasePort  = flag.Int("room-base-port", 0, "First port probed for room-server listeners")
		storageDir    = flag.String("storage-dir", "", "Directory for game packages and the metadata store")
		adminPort     = flag.Int("admin-port", 0, "Port for the admin HTTP API (0 keeps the config value)")
		noAdmin       = flag.Bool("no-admin", false, "Disable the admin HTTP API")
		logLevel      = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		showCaller    = flag.Bool("show-caller", false, "Show caller file:line in log output")
	)
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Explicit flags win over file and environment settings.
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *lobbyBasePort != 0 {
		cfg.Ports.LobbyBase = *lobbyBasePort
	}
	if *roomBasePort != 0 {
		cfg.Ports.RoomBase = *roomBasePort
	}
	if *storageDir != "" {
		cfg.Storage.BaseDir = *storageDir
	}
	if *adminPort != 0 {
		cfg.Admin.Port = *adminPort
	}
	if *noAdmin {
		cfg.Admin.Enabled = false
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *showCaller {
		cfg.Logging.ShowCaller = true
	}

	logger.InitLoggers(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.ShowCaller)
	log := logger.CentralLogger

	db, err := database.NewConnection(database.DefaultConfig(cfg.Storage.BaseDir))
	if err != nil {
		log.Fatal("Failed to open metadata store: %v", err)
	}
	defer db.Close()

	store := database.NewStore(db)
	packages := storage.NewPackageStore(cfg.Storage.BaseDir)

	broadcaster := network.NewLogBroadcaster(cfg.Logging.BufferSize)
	streamLog := logger.NewStreamingLogger("CENTRAL", logger.ColorBrightGreen, broadcaster)
	streamLog.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	streamLog.SetShowCaller(cfg.Logging.ShowCaller)

	lobbies := central.NewLobbyTable(
		cfg.Server.Host,
		cfg.Ports.LobbyBase,
		cfg.Ports.RoomBase,
		cfg.Process.LobbyBinary,
		cfg.Process.StopTimeout,
		nil,
		streamLog,
	)
	server := central.NewServer(cfg.Server.Host, cfg.Server.Port, store, packages, lobbies, streamLog)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(server.Run)

	var adminSrv *http.Server
	if cfg.Admin.Enabled {
		router := mux.NewRouter()
		admin := handlers.NewAdminHandler(broadcaster, server)
		admin.RegisterRoutes(router)

		adminSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Admin.Port),
			Handler: router,
		}
		g.Go(func() error {
			log.Info("Admin API listening on %s", adminSrv.Addr)
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		server.Stop()
		if adminSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			adminSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("Server error: %v", err)
	}
	log.Info("Central server stopped")
}
