package encoder

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"shorts-creator/internal/domain"
)

const hardwareCodec = "h264_nvenc"

// Detector probes ffmpeg for hardware encoder support and caches the
// resulting profile for the lifetime of the process.
type Detector struct {
	ffmpegPath   string
	listEncoders func(ctx context.Context, ffmpegPath string) ([]byte, error)

	once     sync.Once
	profile  domain.EncoderProfile
	hardware bool
}

// NewDetector constructs a detector that shells out to ffmpeg.
func NewDetector(ffmpegPath string) *Detector {
	return &Detector{
		ffmpegPath: ffmpegPath,
		listEncoders: func(ctx context.Context, ffmpegPath string) ([]byte, error) {
			return exec.CommandContext(ctx, ffmpegPath, "-encoders").CombinedOutput()
		},
	}
}

// Profile returns the encoder profile to use for this machine. The probe
// runs once; a failed probe silently degrades to the software profile.
func (d *Detector) Profile(ctx context.Context) domain.EncoderProfile {
	d.once.Do(func() {
		d.profile = SoftwareProfile()

		out, err := d.listEncoders(ctx, d.ffmpegPath)
		if err != nil {
			return
		}
		if strings.Contains(string(out), hardwareCodec) {
			d.profile = domain.EncoderProfile{Codec: hardwareCodec, Preset: "p1"}
			d.hardware = true
		}
	})
	return d.profile
}

// HardwareAvailable reports whether the cached probe found NVENC support.
// It runs the probe if Profile has not been called yet.
func (d *Detector) HardwareAvailable(ctx context.Context) bool {
	d.Profile(ctx)
	return d.hardware
}

// SoftwareProfile is the fallback used when no hardware encoder exists.
func SoftwareProfile() domain.EncoderProfile {
	return domain.EncoderProfile{Codec: "libx264", Preset: "ultrafast"}
}

// NewDetectorForTests constructs a detector with an injectable probe func.
func NewDetectorForTests(ffmpegPath string, listEncoders func(ctx context.Context, ffmpegPath string) ([]byte, error)) *Detector {
	return &Detector{
		ffmpegPath:   ffmpegPath,
		listEncoders: listEncoders,
	}
}
