package probe

import (
	"context"
	"errors"
	"testing"
)

// TestDimensionsParsesFirstStream checks happy-path JSON extraction.
func TestDimensionsParsesFirstStream(t *testing.T) {
	var gotName string
	var gotArgs []string
	prober := NewProberForTests("ffprobe-custom", func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = append([]string{}, args...)
		return []byte(`{"streams":[{"width":1920,"height":1080},{"width":640,"height":360}]}`), nil
	})

	dims, err := prober.Dimensions(context.Background(), "/videos/top.mp4")
	if err != nil {
		t.Fatalf("Dimensions() error = %v", err)
	}
	if dims.Width != 1920 || dims.Height != 1080 {
		t.Fatalf("dims = %+v, want 1920x1080", dims)
	}

	if gotName != "ffprobe-custom" {
		t.Fatalf("command = %q, want ffprobe-custom", gotName)
	}
	if gotArgs[len(gotArgs)-1] != "/videos/top.mp4" {
		t.Fatalf("last arg = %q, want input path", gotArgs[len(gotArgs)-1])
	}
}

// TestDimensionsCommandFailure checks subprocess error propagation.
func TestDimensionsCommandFailure(t *testing.T) {
	wantErr := errors.New("exit status 1")
	prober := NewProberForTests("ffprobe", func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, wantErr
	})

	if _, err := prober.Dimensions(context.Background(), "/broken.mp4"); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want wrapped %v", err, wantErr)
	}
}

// TestDimensionsRejectsEmptyStreamList checks missing-stream handling.
func TestDimensionsRejectsEmptyStreamList(t *testing.T) {
	prober := NewProberForTests("ffprobe", func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{"streams":[]}`), nil
	})

	if _, err := prober.Dimensions(context.Background(), "/audio-only.mp4"); err == nil {
		t.Fatal("expected error for empty stream list")
	}
}

// TestDimensionsRejectsZeroDimensions checks non-video first streams.
func TestDimensionsRejectsZeroDimensions(t *testing.T) {
	prober := NewProberForTests("ffprobe", func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{"streams":[{"width":0,"height":0}]}`), nil
	})

	if _, err := prober.Dimensions(context.Background(), "/clip.mp4"); err == nil {
		t.Fatal("expected error for zero dimensions")
	}
}

// TestDimensionsRejectsMalformedJSON checks decode error handling.
func TestDimensionsRejectsMalformedJSON(t *testing.T) {
	prober := NewProberForTests("ffprobe", func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("not json"), nil
	})

	if _, err := prober.Dimensions(context.Background(), "/clip.mp4"); err == nil {
		t.Fatal("expected decode error")
	}
}
