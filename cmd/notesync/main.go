package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"notesync/internal/cli"
	"notesync/internal/config"
	"notesync/internal/logging"
	"notesync/internal/remote"
)

func main() {

	ctx := context.Background()
	cfg := config.Load()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	// No transport adapter is wired in yet; the store runs against the local
	// replica and picks up remote work once an adapter replaces this stub.
	app, err := cli.NewApp(cfg, logger, remote.Disconnected{})

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
