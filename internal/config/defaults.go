package config

import (
	"os"
	"path/filepath"

	"shorts-creator/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
// Tool names without directories resolve through PATH.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		OutputDir:   filepath.Join(homeDir, "Videos", "Shorts"),
		ListenAddr:  ":8080",
	}
}

// Normalize fills missing fields from defaults so partially written
// settings files stay usable.
func Normalize(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = defaults.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = defaults.FFprobePath
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaults.OutputDir
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaults.ListenAddr
	}
	return cfg
}
