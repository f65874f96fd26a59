package encoder

import (
	"context"
	"errors"
	"testing"
)

// TestProfilePicksHardwareWhenListed checks NVENC selection.
func TestProfilePicksHardwareWhenListed(t *testing.T) {
	detector := NewDetectorForTests("ffmpeg", func(ctx context.Context, ffmpegPath string) ([]byte, error) {
		return []byte("V....D h264_nvenc  NVIDIA NVENC H.264 encoder\n"), nil
	})

	profile := detector.Profile(context.Background())
	if profile.Codec != "h264_nvenc" || profile.Preset != "p1" {
		t.Fatalf("profile = %+v, want h264_nvenc/p1", profile)
	}
	if !detector.HardwareAvailable(context.Background()) {
		t.Fatal("HardwareAvailable() = false, want true")
	}
}

// TestProfileFallsBackToSoftware checks selection without NVENC.
func TestProfileFallsBackToSoftware(t *testing.T) {
	detector := NewDetectorForTests("ffmpeg", func(ctx context.Context, ffmpegPath string) ([]byte, error) {
		return []byte("V....D libx264  H.264 / AVC encoder\n"), nil
	})

	profile := detector.Profile(context.Background())
	if profile != SoftwareProfile() {
		t.Fatalf("profile = %+v, want software profile", profile)
	}
	if detector.HardwareAvailable(context.Background()) {
		t.Fatal("HardwareAvailable() = true, want false")
	}
}

// TestProfileDegradesOnProbeFailure checks a failed probe still yields
// a usable profile.
func TestProfileDegradesOnProbeFailure(t *testing.T) {
	detector := NewDetectorForTests("ffmpeg", func(ctx context.Context, ffmpegPath string) ([]byte, error) {
		return nil, errors.New("exec format error")
	})

	if profile := detector.Profile(context.Background()); profile != SoftwareProfile() {
		t.Fatalf("profile = %+v, want software profile", profile)
	}
}

// TestProfileProbesOnce checks the result is cached across calls.
func TestProfileProbesOnce(t *testing.T) {
	calls := 0
	detector := NewDetectorForTests("ffmpeg", func(ctx context.Context, ffmpegPath string) ([]byte, error) {
		calls++
		return []byte("h264_nvenc"), nil
	})

	for i := 0; i < 5; i++ {
		detector.Profile(context.Background())
	}
	if calls != 1 {
		t.Fatalf("probe ran %d times, want 1", calls)
	}
}
