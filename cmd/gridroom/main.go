package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"gamehub/internal/room"
	"gamehub/pkg/logger"
)

func main() {
	var (
		host     = flag.String("host", "127.0.0.1", "Host to bind the room listener to")
		port     = flag.Int("port", 0, "Port for the room server")
		gameName = flag.String("game-name", "grid", "Name of the game this room runs")
		roomID   = flag.String("room-id", "R0", "Room identifier assigned by the lobby")
		logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	// Accepted for argv compatibility with packaged room servers; the grid
	// game always seats exactly two players.
	flag.Int("max-players", 2, "Ignored, the grid game is two-player")
	flag.Parse()

	logger.InitLoggers(logger.ParseLevel(*logLevel), false)

	if *port == 0 {
		logger.RoomLogger.Fatal("--port is required")
	}

	server := room.NewServer(*host, *port, *gameName, *roomID)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		server.Stop()
	}()

	if err := server.Run(); err != nil {
		logger.RoomLogger.Fatal("Room error: %v", err)
	}
}
