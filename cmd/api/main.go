package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"memo-pipeline-go/internal/config"
	"memo-pipeline-go/internal/dispatch"
	"memo-pipeline-go/internal/extractor"
	"memo-pipeline-go/internal/httpapi"
	"memo-pipeline-go/internal/logger"
	"memo-pipeline-go/internal/pipeline"
	"memo-pipeline-go/internal/store"
	"memo-pipeline-go/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfg := config.Load()
	log := logger.NewWithOptions(logger.Options{Environment: cfg.Environment, Level: cfg.LogLevel})
	log.Info("starting service")

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	log.WithField("database_path", cfg.DatabasePath).Info("opening database")
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	transcriber := newTranscriber(cfg, log)
	ext := newExtractor(cfg, log)
	log.WithField("mock_transcribe", cfg.UseMockTranscribe).
		WithField("mock_llm", cfg.UseMockLLM).
		Info("adapters configured")

	// every stage execution gets its own unit of work; the HTTP clients are
	// stateless and safe to reuse
	scopes := func(ctx context.Context) (*pipeline.Scope, error) {
		return &pipeline.Scope{
			Gateway:     db.NewUnitOfWork(),
			Transcriber: transcriber,
			Extractor:   ext,
			Log:         log.Entry,
		}, nil
	}

	dispatcher := dispatch.New(cfg.WorkerConcurrency, log)
	svc := pipeline.NewService(scopes, dispatcher, log)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewServer(svc, log, cfg.MaxAudioBytes),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.TranscribeTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("background jobs did not finish")
	}
	log.Info("stopped")
}

func newTranscriber(cfg *config.Config, log *logger.Logger) pipeline.Transcriber {
	if cfg.UseMockTranscribe {
		return transcription.Mock{}
	}
	return transcription.NewClient(transcription.Config{
		BaseURL:      cfg.TranscribeURL,
		APIKey:       cfg.TranscribeAPIKey,
		PollInterval: cfg.TranscribePollInterval,
		Timeout:      cfg.TranscribeTimeout,
	}, log)
}

func newExtractor(cfg *config.Config, log *logger.Logger) pipeline.Extractor {
	if cfg.UseMockLLM {
		return extractor.Mock{}
	}
	return extractor.NewClient(extractor.Config{
		GatewayURL: cfg.LLMGatewayURL,
		APIKey:     cfg.LLMAPIKey,
		Model:      cfg.LLMModel,
		Timeout:    cfg.LLMTimeout,
	}, log)
}
