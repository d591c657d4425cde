// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/nvannier/fictionary/internal/archive"
	"github.com/nvannier/fictionary/internal/handlers"
	"github.com/nvannier/fictionary/internal/host"
	"github.com/nvannier/fictionary/internal/session"
	"github.com/nvannier/fictionary/internal/words"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Reconnect tokens are signed with ephemeral keys unless a key pair is
	// provided, in which case tokens survive server restarts.
	if priv, pub := os.Getenv("SESSION_PRIVATE_KEY_PATH"), os.Getenv("SESSION_PUBLIC_KEY_PATH"); priv != "" && pub != "" {
		if err := session.InitFromPath(priv, pub); err != nil {
			log.Fatalf("failed to load session keys: %v", err)
		}
	} else {
		session.Init()
	}

	source := words.NewSimpleSource(os.Getenv("WORDS_DIR"))
	store := host.NewStore(source)

	// Redis is optional: with it, applied actions feed the historian queue
	// and lobbies get a polling transport next to the websocket.
	if os.Getenv("REDIS_ADDR") != "" {
		if err := archive.ConnectRedis(); err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		logger.Info("Redis connected: action archive and storage transport enabled")
	}

	srv := handlers.NewServer(logger, store, archive.Rdb)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, srv.Routes()); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
