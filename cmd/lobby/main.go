package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"gamehub/internal/lobby"
	"gamehub/pkg/logger"
)

func main() {
	var (
		host          = flag.String("host", "127.0.0.1", "Host to bind the lobby listener to")
		port          = flag.Int("port", 0, "Port for the lobby control channel")
		roomPortStart = flag.Int("room-port-start", 12000, "First port probed for room-server listeners")
		gameName      = flag.String("game-name", "", "Name of the game this lobby serves")
		version       = flag.String("version", "", "Version of the game this lobby serves")
		gameDir       = flag.String("game-dir", "", "Extracted package directory, empty for the built-in game")
		logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger.InitLoggers(logger.ParseLevel(*logLevel), false)

	if *gameName == "" {
		logger.LobbyLogger.Fatal("--game-name is required")
	}
	if *port == 0 {
		logger.LobbyLogger.Fatal("--port is required")
	}

	log := logger.CreateGameLogger(*gameName, logger.ColorBrightBlue)
	log.SetLevel(logger.ParseLevel(*logLevel))

	table := lobby.NewRoomTable(*gameName, *version, *gameDir, *host, *roomPortStart, nil, log)
	server := lobby.NewServer(*host, *port, table, log)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		server.Stop()
	}()

	if err := server.Run(); err != nil {
		log.Fatal("Lobby error: %v", err)
	}
	log.Info("Lobby for %s stopped", *gameName)
}
