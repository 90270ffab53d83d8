package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/promptforge/promptforge/internal/config"
	"github.com/promptforge/promptforge/internal/httpserver"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	srv, err := httpserver.NewServer(context.Background(), cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize server")
	}

	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("server terminated")
	}
}
