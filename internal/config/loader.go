package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live":  {"gemini-live"},
	"audio": {"portaudio"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultTraceExporter    = "none"
	DefaultLiveProvider     = "gemini-live"
	DefaultAudioBackend     = "portaudio"
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultFrameSize        = 4096
	DefaultSendQueue        = 32
	DefaultFPS              = 60
	DefaultFFTSize          = 512
	DefaultCanvasSize       = 320
	DefaultExponent         = 2.0
	DefaultStickerDuration  = 4 * time.Second
	DefaultCloseTimeout     = 5 * time.Second
	DefaultPersistTimeout   = 10 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every zero-valued field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.TraceExporter == "" {
		cfg.Server.TraceExporter = DefaultTraceExporter
	}
	if cfg.Live.Provider == "" {
		cfg.Live.Provider = DefaultLiveProvider
	}

	a := &cfg.Audio
	if a.Backend == "" {
		a.Backend = DefaultAudioBackend
	}
	if a.InputSampleRate == 0 {
		a.InputSampleRate = DefaultInputSampleRate
	}
	if a.OutputSampleRate == 0 {
		a.OutputSampleRate = DefaultOutputSampleRate
	}
	if a.OutputChannels == 0 {
		a.OutputChannels = 1
	}
	if a.FrameSize == 0 {
		a.FrameSize = DefaultFrameSize
	}
	if a.SendQueue == 0 {
		a.SendQueue = DefaultSendQueue
	}

	v := &cfg.Visualizer
	if v.FPS == 0 {
		v.FPS = DefaultFPS
	}
	if v.FFTSize == 0 {
		v.FFTSize = DefaultFFTSize
	}
	if v.Width == 0 {
		v.Width = DefaultCanvasSize
	}
	if v.Height == 0 {
		v.Height = DefaultCanvasSize
	}
	if v.PixelRatio == 0 {
		v.PixelRatio = 1
	}
	if v.Exponent == 0 {
		v.Exponent = DefaultExponent
	}

	s := &cfg.Session
	if s.StickerDuration == 0 {
		s.StickerDuration = DefaultStickerDuration
	}
	if s.CloseTimeout == 0 {
		s.CloseTimeout = DefaultCloseTimeout
	}
	if s.PersistTimeout == 0 {
		s.PersistTimeout = DefaultPersistTimeout
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	switch cfg.Server.TraceExporter {
	case "", "none", "stdout":
	default:
		errs = append(errs, fmt.Errorf("server.trace_exporter %q is invalid; valid values: none, stdout", cfg.Server.TraceExporter))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("live", cfg.Live.Provider)
	validateProviderName("audio", cfg.Audio.Backend)

	if cfg.Live.APIKey == "" {
		slog.Warn("live.api_key is empty; sessions will fail to authenticate")
	}

	// Audio
	a := cfg.Audio
	if a.InputSampleRate < 8000 || a.InputSampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d is out of range [8000, 192000]", a.InputSampleRate))
	}
	if a.OutputSampleRate < 8000 || a.OutputSampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d is out of range [8000, 192000]", a.OutputSampleRate))
	}
	if a.OutputChannels < 1 || a.OutputChannels > 2 {
		errs = append(errs, fmt.Errorf("audio.output_channels %d is invalid; valid values: 1, 2", a.OutputChannels))
	}
	if a.FrameSize < 1 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", a.FrameSize))
	}
	if a.SendQueue < 1 {
		errs = append(errs, fmt.Errorf("audio.send_queue %d must be positive", a.SendQueue))
	}

	// Visualizer
	v := cfg.Visualizer
	if v.FPS < 1 || v.FPS > 240 {
		errs = append(errs, fmt.Errorf("visualizer.fps %d is out of range [1, 240]", v.FPS))
	}
	if v.FFTSize < 32 || v.FFTSize > 32768 || v.FFTSize&(v.FFTSize-1) != 0 {
		errs = append(errs, fmt.Errorf("visualizer.fft_size %d must be a power of two in [32, 32768]", v.FFTSize))
	}
	if v.Width < 1 || v.Height < 1 {
		errs = append(errs, fmt.Errorf("visualizer size %dx%d must be positive", v.Width, v.Height))
	}
	if v.PixelRatio <= 0 {
		errs = append(errs, fmt.Errorf("visualizer.pixel_ratio %.2f must be positive", v.PixelRatio))
	}
	if v.Exponent < 2 {
		errs = append(errs, fmt.Errorf("visualizer.exponent %.2f must be at least 2", v.Exponent))
	}

	// Session
	s := cfg.Session
	if s.StickerDuration < 0 {
		errs = append(errs, fmt.Errorf("session.sticker_duration %s must not be negative", s.StickerDuration))
	}
	if s.CloseTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.close_timeout %s must not be negative", s.CloseTimeout))
	}
	if s.PersistTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.persist_timeout %s must not be negative", s.PersistTimeout))
	}

	// Memory availability
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; conversations are kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
