// Command asr-indicator is the background speech-to-text service. It listens
// for start/stop commands on a Unix socket (see asr-trigger), segments
// microphone audio on speech pauses and delivers each transcription to the
// configured output.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/realtime-ai/asr-indicator/pkg/audio"
	"github.com/realtime-ai/asr-indicator/pkg/config"
	"github.com/realtime-ai/asr-indicator/pkg/service"
	"github.com/realtime-ai/asr-indicator/pkg/trace"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaultPath, err := config.DefaultPath()
	if err != nil {
		defaultPath = "config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "optional .env file loaded before the environment")
	listDevices := flag.Bool("list-devices", false, "print the available capture devices and exit")
	replay := flag.String("replay", "", "feed a 16-bit mono WAV recording instead of the microphone")
	listen := flag.Bool("listen", false, "start listening immediately instead of waiting for a start command")
	flag.Parse()

	if *listDevices {
		names, err := audio.ListCaptureDevices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "asr-indicator: %v\n", err)
			return 1
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return 0
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "asr-indicator: %v\n", err)
		return 1
	}
	cfg, created, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "asr-indicator: %v\n", err)
		return 1
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	if created {
		logger.Info("wrote default configuration", "path", *configPath)
	}
	logger.Info("asr-indicator starting",
		"config", *configPath,
		"engine", cfg.Engine.Name,
		"vad", cfg.VAD.Engine,
		"output", cfg.Output.Method)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := trace.Initialize(ctx, cfg.Tracing(), logger); err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	var deps service.Deps
	if *replay != "" {
		capture := cfg.Capture()
		src, err := audio.OpenReplay(*replay, capture.SampleRate, capture.FrameSamples())
		if err != nil {
			logger.Error("failed to open recording", "error", err)
			return 1
		}
		deps.Source = src
		logger.Info("replaying recording", "path", *replay)
	}

	svc, err := service.New(cfg, logger, deps)
	if err != nil {
		logger.Error("failed to start service", "error", err)
		return 1
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	if *listen {
		svc.Machine().Start()
	}
	if err := svc.Run(ctx); err != nil {
		return 1
	}
	return 0
}
