package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/usablelab/instrueval/internal/api/http"
	"github.com/usablelab/instrueval/internal/config"
	"github.com/usablelab/instrueval/internal/db"
	"github.com/usablelab/instrueval/internal/participant"
	"github.com/usablelab/instrueval/internal/seed"
	"github.com/usablelab/instrueval/internal/storage"
	"github.com/usablelab/instrueval/internal/survey"
)

func main() {
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store survey.Store
	if cfg.DBDriver == "memory" {
		store = survey.NewMemoryStore()
	} else {
		dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		store = survey.NewSQLStore(dbh, cfg.DBDriver)
	}

	blobs, err := storage.NewFSStore(cfg.MediaBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	if err := seed.Questions(ctx, store); err != nil {
		log.Fatalf("seed questions: %v", err)
	}
	if err := seed.Docs(ctx, store, blobs); err != nil {
		log.Fatalf("seed docs: %v", err)
	}

	svc := survey.NewService(store, cfg.MaxQueueItems, cfg.MinTextLetters)
	ids := participant.NewIssuer(cfg.ParticipantSecret)

	r := api.NewRouter(cfg, svc, ids, blobs)

	log.Printf("listening on %s (db=%s, media=%s)", cfg.HTTPAddr, cfg.DBDriver, cfg.MediaBasePath)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatalf("server: %v", err)
	}
}
