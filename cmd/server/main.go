package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/sampattai/sarthi/internal/chat"
	"github.com/sampattai/sarthi/internal/config"
	"github.com/sampattai/sarthi/internal/db"
	"github.com/sampattai/sarthi/internal/funds"
	"github.com/sampattai/sarthi/internal/gemini"
	"github.com/sampattai/sarthi/internal/predict"
	"github.com/sampattai/sarthi/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("[server] %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags override the environment defaults.
	fs := flag.NewFlagSet("sarthi-server", flag.ExitOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite message log path")
	fs.StringVar(&cfg.GeminiModel, "model", cfg.GeminiModel, "gemini model name")
	fs.IntVar(&cfg.MaxHistory, "max-history", cfg.MaxHistory, "max turns kept per session")
	fs.StringVar(&cfg.PredictURL, "predict-url", cfg.PredictURL, "prediction oracle url")
	fs.StringVar(&cfg.FundsCSVPath, "funds-csv", cfg.FundsCSVPath, "fund records csv path")
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("SARTHI")); err != nil {
		return err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.InitSchema(database); err != nil {
		return err
	}

	generator := gemini.NewClient(
		cfg.GeminiAPIKey,
		cfg.GeminiEndpoint,
		cfg.GeminiModel,
		cfg.SystemPrompt,
	)
	chatSvc := chat.NewService(
		chat.NewSQLiteLog(db.NewLog(database)),
		generator,
		chat.NewMemory(cfg.MaxSessions, cfg.SessionIdleTTL()),
		cfg.MaxHistory,
		cfg.GenerateTimeout(),
	)
	predictSvc := predict.NewService(cfg.PredictURL, cfg.PredictTimeout())
	fundsSvc := funds.NewService(cfg.FundsCSVPath)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(chatSvc, predictSvc, fundsSvc, cfg.FundsSampleLimit),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Print("[server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
