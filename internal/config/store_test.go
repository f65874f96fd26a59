package config

import (
	"os"
	"path/filepath"
	"testing"

	"shorts-creator/internal/domain"
)

// TestLoadReturnsDefaultsWhenMissing checks first-launch behaviour.
func TestLoadReturnsDefaultsWhenMissing(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "settings.json"))

	cfg, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != DefaultSettings() {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
}

// TestSaveLoadRoundTrip checks persisted settings survive a reload.
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	store := NewJSONStore(path)

	want := domain.Settings{
		FFmpegPath:  "/opt/ffmpeg/bin/ffmpeg",
		FFprobePath: "/opt/ffmpeg/bin/ffprobe",
		OutputDir:   "/srv/shorts",
		ListenAddr:  ":9090",
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
}

// TestLoadRejectsCorruptFile checks malformed JSON surfaces an error.
func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewJSONStore(path).Load(); err == nil {
		t.Fatal("Load() succeeded on corrupt file")
	}
}

// TestNormalizeFillsMissingFields checks partial files gain defaults.
func TestNormalizeFillsMissingFields(t *testing.T) {
	got := Normalize(domain.Settings{FFmpegPath: "/usr/local/bin/ffmpeg"})

	if got.FFmpegPath != "/usr/local/bin/ffmpeg" {
		t.Fatalf("FFmpegPath = %q, overwritten by defaults", got.FFmpegPath)
	}
	defaults := DefaultSettings()
	if got.FFprobePath != defaults.FFprobePath || got.ListenAddr != defaults.ListenAddr || got.OutputDir != defaults.OutputDir {
		t.Fatalf("Normalize() = %+v, missing defaults", got)
	}
}
