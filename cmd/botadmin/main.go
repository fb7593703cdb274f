package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"botadmin/internal/api"
	"botadmin/internal/audit"
	"botadmin/internal/config"
	"botadmin/internal/ingest"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "HTTP bind address")
		dbPath        = flag.String("db", "botadmin.db", "SQLite DB path")
		cacheTTL      = flag.Duration("cache-ttl", config.DefaultTTL, "task config cache TTL")
		jwtSecret     = flag.String("jwt-secret", os.Getenv("BOTADMIN_JWT_SECRET"), "HS256 secret for admin tokens")
		auditFallback = flag.String("audit-fallback", "logs/audit.jsonl", "fallback JSONL sink for audit records")
		retainDays    = flag.Int("audit-retention-days", 90, "audit retention window in days")
		purgeSpec     = flag.String("audit-purge-cron", "0 3 * * *", "cron schedule for audit retention purge")
		vectorURL     = flag.String("vector-url", "http://localhost:6333", "vector store base URL")
		vectorKey     = flag.String("vector-key", os.Getenv("VECTOR_STORE_API_KEY"), "vector store API key")
		reingestSpec  = flag.String("reingest-cron", "", "optional cron schedule for content re-ingestion")
		seed          = flag.Bool("seed", true, "seed default task configs on startup")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	if *jwtSecret == "" {
		log.Fatal().Msg("jwt secret is required (flag -jwt-secret or BOTADMIN_JWT_SECRET)")
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := config.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure config schema")
	}
	if err := audit.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure audit schema")
	}
	if err := ingest.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure ingest schema")
	}

	auditLog := audit.NewLogger(db, *auditFallback)
	store := config.NewSQLiteStore(db)
	cache := config.NewCache(store, *cacheTTL)
	configs := config.NewManager(store, cache, auditLog, nil)

	if *seed {
		if err := config.Seed(context.Background(), configs); err != nil {
			log.Fatal().Err(err).Msg("seed task configs")
		}
	}

	retention, err := audit.NewRetention(auditLog, *purgeSpec, time.Duration(*retainDays)*24*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("audit retention schedule")
	}
	retention.Start()
	defer retention.Stop()

	sources := ingest.NewSQLiteSources(db)
	vectorStore := ingest.NewHTTPVectorStore(*vectorURL, *vectorKey, 30*time.Second)
	ingester := ingest.NewService(sources, vectorStore, auditLog)
	if *reingestSpec != "" {
		if err := ingester.Schedule(*reingestSpec); err != nil {
			log.Fatal().Err(err).Msg("reingest schedule")
		}
		defer ingester.Stop()
	}

	srv := &http.Server{
		Addr:    *addr,
		Handler: api.NewServer(configs, auditLog, sources, ingester, []byte(*jwtSecret)),
	}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
