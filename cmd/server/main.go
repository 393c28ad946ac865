package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/sirupsen/logrus"

	"github.com/parlorgames/parlor/internal/auth"
	"github.com/parlorgames/parlor/internal/engine"
	"github.com/parlorgames/parlor/internal/events"
	"github.com/parlorgames/parlor/internal/handlers"
	"github.com/parlorgames/parlor/internal/lobby"
	"github.com/parlorgames/parlor/internal/middleware"
	"github.com/parlorgames/parlor/internal/session"
	"github.com/parlorgames/parlor/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	// init store connection
	if err := store.ConnectRedis(logger); err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	defer store.Rdb.Close()

	// init auth keys
	if priv, pub := os.Getenv("JWT_PRIVATE_KEY_PATH"), os.Getenv("JWT_PUBLIC_KEY_PATH"); priv != "" && pub != "" {
		if err := auth.InitFromPath(priv, pub); err != nil {
			logger.Fatalf("failed to load signing keys: %v", err)
		}
	} else {
		auth.Init()
	}

	engine.RegisterBuiltins()

	hub := events.NewHub(logger)
	lobbies := lobby.NewManager(store.Rdb, hub, logger)
	games := session.NewOrchestrator(store.Rdb, lobbies, hub, logger)
	srv := handlers.NewServer(logger, lobbies, games, hub)

	watchCtx, stopWatcher := context.WithCancel(context.Background())
	defer stopWatcher()
	go session.NewWatcher(store.Rdb, games, logger).Run(watchCtx)

	// init routers
	mux := http.NewServeMux()
	mux.HandleFunc("/guest", handlers.GuestHandler(srv))
	mux.HandleFunc("/me", handlers.MeHandler(srv))

	mux.HandleFunc("/lobby/create", handlers.CreateLobbyHandler(srv))
	mux.HandleFunc("/lobby/join", handlers.JoinLobbyHandler(srv))
	mux.HandleFunc("/lobby/leave", handlers.LeaveLobbyHandler(srv))
	mux.HandleFunc("/lobby/transfer-host", handlers.TransferHostHandler(srv))
	mux.HandleFunc("/lobby/settings", handlers.UpdateSettingsHandler(srv))
	mux.HandleFunc("/lobby/list", handlers.ListLobbiesHandler(srv))
	mux.HandleFunc("/lobby", handlers.GetLobbyHandler(srv))

	mux.HandleFunc("/game/create", handlers.CreateGameHandler(srv))
	mux.HandleFunc("/game/move", handlers.MoveHandler(srv))
	mux.HandleFunc("/game/forfeit", handlers.ForfeitHandler(srv))
	mux.HandleFunc("/game/state", handlers.GameStateHandler(srv))
	mux.HandleFunc("/game", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			handlers.DeleteGameHandler(srv)(w, r)
			return
		}
		handlers.GameStateHandler(srv)(w, r)
	})

	mux.HandleFunc("/games", handlers.ListGamesHandler(srv))
	mux.HandleFunc("/games/", handlers.GetGameMetaHandler(srv))

	mux.HandleFunc("/ws/", handlers.WSHandler(srv))

	server := &http.Server{
		Handler:      middleware.LogMiddleware(logger)(mux),
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
	}

	port := os.Getenv("PARLOR_SERVICE_PORT")
	if port == "" {
		port = "8080"
	}
	l, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}

	logger.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}
