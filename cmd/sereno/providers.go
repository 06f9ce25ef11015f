package main

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/sereno/internal/app"
	"github.com/MrWong99/sereno/internal/config"
	"github.com/MrWong99/sereno/pkg/audio"
	"github.com/MrWong99/sereno/pkg/audio/portaudio"
	"github.com/MrWong99/sereno/pkg/provider/s2s"
	geminilive "github.com/MrWong99/sereno/pkg/provider/s2s/gemini"
)

// registerBuiltinProviders wires the built-in live provider and audio backend
// factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLive("gemini-live", func(lc config.LiveConfig) (s2s.Provider, error) {
		var opts []geminilive.Option
		if lc.Model != "" {
			opts = append(opts, geminilive.WithModel(lc.Model))
		}
		if lc.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(lc.BaseURL))
		}
		return geminilive.New(lc.APIKey, opts...), nil
	})

	reg.RegisterAudio("portaudio", func(config.AudioConfig) (audio.Platform, error) {
		return portaudio.New()
	})

	slog.Debug("registered providers", "live", reg.LiveNames())
}

// buildProviders instantiates the providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	live, err := reg.CreateLive(cfg.Live)
	if err != nil {
		return nil, fmt.Errorf("create live provider %q: %w", cfg.Live.Provider, err)
	}
	slog.Info("provider created", "kind", "live", "name", cfg.Live.Provider, "model", cfg.Live.Model)

	platform, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio backend %q: %w", cfg.Audio.Backend, err)
	}
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Backend)

	return &app.Providers{Live: live, Audio: platform}, nil
}
