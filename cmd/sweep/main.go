// Command sweep runs one expiry pass and exits. It is the entry point for an
// external scheduler (cron, a cloud scheduled trigger) and shares no state
// with the long-running server: an invocation may overlap with the server's
// own timer without producing duplicate deletions or notifications.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sejf-plikow/internal/config"
	"sejf-plikow/internal/database"
	"sejf-plikow/internal/notifier"
	"sejf-plikow/internal/storage"
	"sejf-plikow/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Nie można wczytać konfiguracji: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dbpool, err := pgxpool.New(ctx, cfg.DB.Source)
	if err != nil {
		log.Fatalf("Nie można połączyć się z bazą danych: %v", err)
	}
	defer dbpool.Close()

	var blobs storage.BlobStorage
	if cfg.Storage.Backend == "s3" {
		blobs, err = storage.NewMinioStorage(cfg.Storage)
	} else {
		blobs, err = storage.NewLocalStorage(cfg.Storage.Path)
	}
	if err != nil {
		log.Fatalf("Nie można zainicjować storage (%s): %v", cfg.Storage.Backend, err)
	}

	var n notifier.Notifier
	if cfg.SMTP.Configured() {
		n = notifier.NewSMTPNotifier(cfg.SMTP, logger)
	} else {
		n = notifier.NewDisabled(logger)
	}

	store := database.NewStore(dbpool, nil)
	sweeper := sweep.New(store, blobs, n, cfg.Sweep.NotifyLeadTime(), logger)

	result, err := sweeper.Run(ctx)
	if err != nil {
		log.Fatalf("Przebieg sweep nie powiódł się: %v", err)
	}

	json.NewEncoder(os.Stdout).Encode(result)
}
