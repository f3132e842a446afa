package api

import (
	"sejf-plikow/internal/config"
	"sejf-plikow/internal/database"
	"sejf-plikow/internal/storage"
	"sejf-plikow/internal/sweep"
	"sejf-plikow/internal/websocket"
)

type Server struct {
	config  *config.Config
	store   *database.PostgresStore
	storage storage.BlobStorage
	sweeper *sweep.Sweeper
	wsHub   *websocket.Hub
}

func NewServer(cfg *config.Config, store *database.PostgresStore, blobs storage.BlobStorage, sweeper *sweep.Sweeper, wsHub *websocket.Hub) *Server {
	return &Server{
		config:  cfg,
		store:   store,
		storage: blobs,
		sweeper: sweeper,
		wsHub:   wsHub,
	}
}
