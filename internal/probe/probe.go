package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"shorts-creator/internal/domain"
)

// Prober reads stream metadata through ffprobe.
type Prober struct {
	ffprobePath string
	runCommand  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewProber constructs a prober that shells out to ffprobe.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		runCommand: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// report mirrors the subset of ffprobe JSON output that is consumed.
type report struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

// Dimensions returns the first stream's width and height for one input.
func (p *Prober) Dimensions(ctx context.Context, path string) (domain.Dimensions, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		path,
	}

	out, err := p.runCommand(ctx, p.ffprobePath, args...)
	if err != nil {
		return domain.Dimensions{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var parsed report
	if err := json.Unmarshal(out, &parsed); err != nil {
		return domain.Dimensions{}, fmt.Errorf("decode ffprobe output for %s: %w", path, err)
	}
	if len(parsed.Streams) == 0 {
		return domain.Dimensions{}, fmt.Errorf("no streams reported for %s", path)
	}

	dims := domain.Dimensions{
		Width:  parsed.Streams[0].Width,
		Height: parsed.Streams[0].Height,
	}
	if dims.Width <= 0 || dims.Height <= 0 {
		return domain.Dimensions{}, fmt.Errorf("missing video dimensions for %s", path)
	}
	return dims, nil
}

// NewProberForTests constructs a prober with an injectable command func.
func NewProberForTests(ffprobePath string, runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		runCommand:  runCommand,
	}
}
