package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/pinebranchlab/soundbooth/external/audio"
	configloader "github.com/pinebranchlab/soundbooth/external/config"
	"github.com/pinebranchlab/soundbooth/external/discord"
	relayimpl "github.com/pinebranchlab/soundbooth/external/relay"
	repositoryimpl "github.com/pinebranchlab/soundbooth/external/repository"
	transcodeimpl "github.com/pinebranchlab/soundbooth/external/transcode"
	transcriberimpl "github.com/pinebranchlab/soundbooth/external/transcriber"
	"github.com/pinebranchlab/soundbooth/internal/config"
	discordpkg "github.com/pinebranchlab/soundbooth/internal/discord"
	"github.com/pinebranchlab/soundbooth/internal/repository"
	"github.com/pinebranchlab/soundbooth/internal/session"
	transcriberpkg "github.com/pinebranchlab/soundbooth/internal/transcriber"
	"github.com/samber/do/v2"
)

const (
	discordConnectTimeout    = 20 * time.Second
	transcribeWorkerInterval = 10 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching recorder")
	run(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	relayimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	transcodeimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) {
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		slog.Error("failed to resolve discord client", "error", err)
		os.Exit(1)
	}
	orch, err := do.Invoke[*session.Orchestrator](injector)
	if err != nil {
		slog.Error("failed to resolve session orchestrator", "error", err)
		os.Exit(1)
	}
	relayAdapter, err := do.Invoke[*session.RelayAdapter](injector)
	if err != nil {
		slog.Error("failed to resolve relay adapter", "error", err)
		os.Exit(1)
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancelConnect()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	botUserID, err := dc.GetBotUserID()
	if err != nil {
		slog.Error("failed to resolve bot user id", "error", err)
		os.Exit(1)
	}
	orch.SetBotUserID(botUserID)

	dc.RegisterVoiceStateUpdateHandler(orch.HandleVoiceStateUpdate)
	dc.RegisterMessageHandler(orch.HandleMessage)
	slog.Info("discord handlers registered")

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go relayAdapter.Run(runCtx)
	startTranscriptionWorker(runCtx, cfg, injector)

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}
	cancelRun()
	orch.Shutdown()
}

func startTranscriptionWorker(ctx context.Context, cfg *config.Config, injector do.Injector) {
	if !cfg.TranscribeEnabled {
		slog.Info("transcription worker disabled")
		return
	}
	repo, err := do.Invoke[repository.Repository](injector)
	if err != nil {
		slog.Error("failed to resolve repository for transcription worker", "error", err)
		os.Exit(1)
	}
	stt, err := do.Invoke[transcriberpkg.Transcriber](injector)
	if err != nil {
		slog.Error("failed to resolve transcriber", "error", err)
		os.Exit(1)
	}
	worker := transcriberpkg.NewWorker(repo, stt, cfg.DefaultTranscribeLanguage, transcribeWorkerInterval)
	go worker.Run(ctx)
}
