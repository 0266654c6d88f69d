package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"quizimport/internal/app"
	"quizimport/internal/corpus"
	"quizimport/internal/db"
	"quizimport/internal/importer"
	"quizimport/internal/pkg/logger"
)

func main() {
	cfg := app.LoadConfig()

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		os.Stderr.WriteString("logger init failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	dbConn, err := db.Open(ctx, db.Driver(cfg.CorpusDriver), cfg.CorpusDSN, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		log.Error("database error", "driver", cfg.CorpusDriver, "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	store := corpus.NewStore(dbConn)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Error("corpus schema error", "error", err)
		os.Exit(1)
	}

	engine := importer.NewEngine(store, importer.WithLogger(log.With("component", "importer")))
	r := app.NewRouter(cfg, dbConn, engine, log)

	log.Info("quizimport web listening", "addr", cfg.HTTPAddr, "corpus_driver", cfg.CorpusDriver)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
