package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"gamehub/internal/arena"
	"gamehub/pkg/logger"
)

func main() {
	var (
		host       = flag.String("host", "127.0.0.1", "Host to bind the arena listener to")
		port       = flag.Int("port", 0, "Port for the arena server")
		maxPlayers = flag.Int("max-players", 4, "Maximum number of tanks in the arena")
		gameName   = flag.String("game-name", "arena", "Name of the game this room runs")
		roomID     = flag.String("room-id", "R0", "Room identifier assigned by the lobby")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger.InitLoggers(logger.ParseLevel(*logLevel), false)

	if *port == 0 {
		logger.RoomLogger.Fatal("--port is required")
	}

	server := arena.NewServer(*host, *port, *maxPlayers, *gameName, *roomID)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		server.Stop()
	}()

	if err := server.Run(); err != nil {
		logger.RoomLogger.Fatal("Arena error: %v", err)
	}
}
