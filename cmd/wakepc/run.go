package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/triolabs/wakepc/internal/asr"
	"github.com/triolabs/wakepc/internal/audio"
	"github.com/triolabs/wakepc/internal/config"
	"github.com/triolabs/wakepc/internal/hub"
	"github.com/triolabs/wakepc/internal/journal"
	"github.com/triolabs/wakepc/internal/logging"
	"github.com/triolabs/wakepc/internal/overlay"
	"github.com/triolabs/wakepc/internal/playback"
	"github.com/triolabs/wakepc/internal/session"
	"github.com/triolabs/wakepc/internal/wake"
)

// runClient wires the whole pipeline and blocks until SIGINT/SIGTERM.
func runClient() error {
	log := logging.Tagged("main")

	cfg, err := config.Load(settingsPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Event bus for overlay observers.
	bus := overlay.NewBus()
	go func() {
		if err := bus.Serve(ctx, cfg.Overlay); err != nil {
			log.Errorf("event server: %v", err)
			cancel()
		}
	}()

	hubClient := hub.New(cfg.Hub)

	// Wake transcription capability: local model when configured, hub STT
	// otherwise.
	var tr wake.Transcriber
	if cfg.Wake.ModelPath != "" {
		w, err := asr.NewWhisper(cfg.Wake.ModelPath)
		if err != nil {
			log.Warnf("local wake model unavailable (%v), using hub STT", err)
		} else {
			tr = w
		}
	}
	if tr == nil {
		tr = &asr.HubSTT{STT: hubClient.SpeechToText}
	}

	detector, err := wake.NewDetector(cfg.Wake, tr)
	if err != nil {
		return err
	}
	log.Infof("active wake words: %v", detector.ActiveKeywords())

	// Microphone. Device trouble is surfaced to observers; running out of
	// retries stops the process.
	source := audio.NewSource(cfg.Audio, func(message string, fatal bool) {
		bus.Publish(overlay.Error("audio", message))
		if fatal {
			log.Errorf("audio source fatal: %s", message)
			cancel()
		}
	})

	var sink session.CycleSink
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Warnf("journal disabled: %v", err)
		} else {
			defer j.Close()
			sink = j
		}
	}

	orch := session.New(session.Options{
		Config:   cfg,
		Bus:      bus,
		Hub:      hubClient,
		Source:   source,
		Detector: detector,
		Player:   playback.NewPlayer(),
		Sink:     sink,
	})

	if err := source.Start(ctx); err != nil {
		return err
	}
	defer source.Stop()

	wakeFrames := source.Subscribe("wake", 256)
	go detector.Run(ctx, wakeFrames)

	log.Infof("wakepc running (session will idle until a wake word)")
	err = orch.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
