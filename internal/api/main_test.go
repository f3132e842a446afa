package api

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"sejf-plikow/internal/auth"
	"sejf-plikow/internal/config"
	"sejf-plikow/internal/database"
	"sejf-plikow/internal/models"
	"sejf-plikow/internal/storage"
	"sejf-plikow/internal/sweep"
	"sejf-plikow/internal/websocket"
)

var testServer *Server
var testUserToken string
var testUserClaims *auth.AppClaims
var testNotifier *recordingNotifier

// recordingNotifier zapisuje wysłane ostrzeżenia zamiast łączyć się z SMTP.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) Notify(ctx context.Context, address, filename string, expiryTime time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, address+":"+filename)
	return nil
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:14-alpine",
		postgres.WithDatabase("test_api_db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	if err != nil {
		log.Fatalf("Could not start postgres: %s", err)
	}
	defer pgContainer.Terminate(ctx)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("Could not get connection string: %s", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	schema, err := os.ReadFile("../../db/init.sql")
	if err != nil {
		log.Fatalf("Could not read schema file: %s", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("Could not apply schema: %s", err)
	}

	tempDir, err := os.MkdirTemp("", "api-storage-test")
	if err != nil {
		log.Fatalf("Could not create temp dir: %s", err)
	}
	defer os.RemoveAll(tempDir)

	localStorage, err := storage.NewLocalStorage(tempDir)
	if err != nil {
		log.Fatalf("Could not create local storage: %s", err)
	}

	wsHub := websocket.NewHub()
	store := database.NewStore(pool, wsHub)
	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "api_test_secret"},
		Sweep: config.SweepConfig{
			NotifyLeadHours:  24,
			IntervalMinutes:  60,
			MinRetentionDays: 1,
		},
		Upload: config.UploadConfig{
			MaxSizeBytes:      16 * 1024 * 1024,
			AllowedExtensions: []string{"txt", "pdf", "png"},
		},
	}

	testNotifier = &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeper := sweep.New(store, localStorage, testNotifier, cfg.Sweep.NotifyLeadTime(), logger)

	testServer = NewServer(cfg, store, localStorage, sweeper, wsHub)

	hashedPassword, _ := auth.HashPassword("password")
	var userID int64
	var email = "api_test_user@example.com"
	pool.QueryRow(ctx, `INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id`, email, hashedPassword).Scan(&userID)

	testUser := &models.User{ID: userID, Email: email}
	testUserToken, err = auth.GenerateJWT(testUser, cfg.JWT.Secret)
	if err != nil {
		log.Fatalf("Could not generate token: %s", err)
	}

	testUserClaims, err = auth.VerifyJWT(testUserToken, cfg.JWT.Secret)
	if err != nil {
		log.Fatalf("Could not verify token: %s", err)
	}

	os.Exit(m.Run())
}
