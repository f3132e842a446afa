// @title           Sejf Plikow API
// @version         1.0
// @description     Self-expiring file vault: uploaded files are kept for a chosen retention period, owners are warned before expiry, and expired files are deleted automatically.
// @host            localhost
// @schemes         http https
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sejf-plikow/internal/api"
	"sejf-plikow/internal/config"
	"sejf-plikow/internal/database"
	"sejf-plikow/internal/notifier"
	"sejf-plikow/internal/storage"
	"sejf-plikow/internal/sweep"
	"sejf-plikow/internal/websocket"

	_ "sejf-plikow/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

func newBlobStorage(cfg *config.Config) (storage.BlobStorage, error) {
	// The backend is picked exactly once here. A broken s3 configuration is
	// fatal instead of silently downgrading to local storage.
	if cfg.Storage.Backend == "s3" {
		return storage.NewMinioStorage(cfg.Storage)
	}
	return storage.NewLocalStorage(cfg.Storage.Path)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Nie można wczytać konfiguracji: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dbpool, err := pgxpool.New(context.Background(), cfg.DB.Source)
	if err != nil {
		log.Fatalf("Nie można połączyć się z bazą danych: %v", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(context.Background()); err != nil {
		log.Fatalf("Nie można pingować bazy danych: %v", err)
	}
	log.Println("Pomyślnie połączono z bazą danych")

	blobs, err := newBlobStorage(cfg)
	if err != nil {
		log.Fatalf("Nie można zainicjować storage (%s): %v", cfg.Storage.Backend, err)
	}
	log.Printf("Aktywny backend storage: %s", cfg.Storage.Backend)

	var n notifier.Notifier
	if cfg.SMTP.Configured() {
		n = notifier.NewSMTPNotifier(cfg.SMTP, logger)
	} else {
		log.Println("SMTP nie skonfigurowane - powiadomienia wyłączone")
		n = notifier.NewDisabled(logger)
	}

	wsHub := websocket.NewHub()
	go wsHub.Run()

	store := database.NewStore(dbpool, wsHub)

	sweeper := sweep.New(store, blobs, n, cfg.Sweep.NotifyLeadTime(), logger)
	runner := sweep.NewRunner(sweeper, cfg.Sweep.Interval(), logger)
	runner.Start(context.Background())
	defer runner.Stop()

	server := api.NewServer(cfg, store, blobs, sweeper, wsHub)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))
	r.Use(api.MetricsMiddleware)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("https://localhost/swagger/doc.json"),
	))

	r.Get("/ws", server.ServeWsHandler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Sejf plików działa! Dokumentacja dostępna pod /swagger/index.html"))
	})

	r.Post("/api/v1/auth/register", server.RegisterHandler)
	r.Post("/api/v1/auth/login", server.LoginHandler)
	r.Post("/api/v1/auth/refresh", server.RefreshHandler)
	r.Post("/api/v1/auth/logout", server.LogoutHandler)

	r.Get("/health", server.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(server.AuthMiddleware)
		r.Get("/me", server.GetCurrentUserHandler)
		r.Get("/files", server.ListFilesHandler)
		r.Post("/files", server.UploadFileHandler)
		r.Get("/files/{fileId}/download", server.DownloadFileHandler)
		r.Delete("/files/{fileId}", server.DeleteFileHandler)
		r.Post("/admin/sweep", server.TriggerSweepHandler)
		r.Get("/events", server.GetEventsHandler)
		r.Get("/sessions", server.ListSessionsHandler)
		r.Delete("/sessions/{sessionId}", server.DeleteSessionHandler)
		r.Post("/sessions/terminate_all", server.TerminateAllSessionsHandler)
	})

	log.Println("Uruchamianie serwera na porcie :8080")
	if err := http.ListenAndServe(":8080", r); err != nil {
		log.Fatalf("Nie można uruchomić serwera: %v", err)
	}
}
