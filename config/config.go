package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Backend names recognized for transcription.
const (
	BackendStub         = "stub"
	BackendRemoteAPI    = "remote-api"
	BackendRemoteStream = "remote-stream"
)

type Config struct {
	DiscordToken string

	// TranscriptChannel is the text channel transcript lines are posted
	// to. Empty means log-only.
	TranscriptChannel string

	Backend   string
	APIKey    string
	ModelName string
	RemoteURL string

	SilenceThresholdMs int
	FinalizeGraceMs    int
	MaxConversions     int64

	ConverterBin string
	SaveAudioDir string
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendStub)
	v.SetDefault("silence_threshold_ms", 800)
	v.SetDefault("finalize_grace_ms", 2000)
	v.SetDefault("max_conversions", 4)
	v.SetDefault("converter_bin", "ffmpeg")
}

func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		DiscordToken:       v.GetString("discord_token"),
		TranscriptChannel:  v.GetString("transcript_channel"),
		Backend:            v.GetString("backend"),
		APIKey:             v.GetString("api_key"),
		ModelName:          v.GetString("model_name"),
		RemoteURL:          v.GetString("remote_url"),
		SilenceThresholdMs: v.GetInt("silence_threshold_ms"),
		FinalizeGraceMs:    v.GetInt("finalize_grace_ms"),
		MaxConversions:     v.GetInt64("max_conversions"),
		ConverterBin:       v.GetString("converter_bin"),
		SaveAudioDir:       v.GetString("save_audio_dir"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendStub:
	case BackendRemoteAPI, BackendRemoteStream:
		if c.RemoteURL == "" {
			return fmt.Errorf("backend %q requires remote_url", c.Backend)
		}
	default:
		return fmt.Errorf(
			"unknown backend %q (want %q, %q, or %q)",
			c.Backend,
			BackendStub,
			BackendRemoteAPI,
			BackendRemoteStream,
		)
	}

	if c.SilenceThresholdMs <= 0 {
		return fmt.Errorf(
			"silence_threshold_ms must be positive, got %d",
			c.SilenceThresholdMs,
		)
	}

	if c.FinalizeGraceMs < 0 {
		return fmt.Errorf(
			"finalize_grace_ms must not be negative, got %d",
			c.FinalizeGraceMs,
		)
	}

	if c.MaxConversions <= 0 {
		return fmt.Errorf(
			"max_conversions must be positive, got %d",
			c.MaxConversions,
		)
	}

	if c.ConverterBin == "" {
		return fmt.Errorf("converter_bin must not be empty")
	}

	return nil
}

func (c Config) SilenceThreshold() time.Duration {
	return time.Duration(c.SilenceThresholdMs) * time.Millisecond
}

func (c Config) FinalizeGrace() time.Duration {
	return time.Duration(c.FinalizeGraceMs) * time.Millisecond
}
