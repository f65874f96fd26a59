package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shorts-creator/internal/config"
	"shorts-creator/internal/diagnostics"
	"shorts-creator/internal/domain"
	"shorts-creator/internal/jobs"
	"shorts-creator/internal/pipeline"
)

// fakePipeline delegates to an injectable run function.
type fakePipeline struct {
	run func(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

func (p *fakePipeline) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	return p.run(ctx, req)
}

// fakeEncoder always reports the software profile.
type fakeEncoder struct{}

func (fakeEncoder) Profile(ctx context.Context) domain.EncoderProfile {
	return domain.EncoderProfile{Codec: "libx264", Preset: "ultrafast"}
}

func (fakeEncoder) HardwareAvailable(ctx context.Context) bool {
	return false
}

func newTestApp(t *testing.T, run func(ctx context.Context, req pipeline.Request) (pipeline.Result, error)) (*App, domain.ProcessingJob) {
	t.Helper()

	outputDir := t.TempDir()
	settings := domain.Settings{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		OutputDir:   outputDir,
		ListenAddr:  ":0",
	}

	checker := diagnostics.NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.Stat, os.MkdirAll, os.CreateTemp, os.Remove,
	)

	app := &App{
		Settings: settings,
		Store:    config.NewJSONStore(filepath.Join(t.TempDir(), "settings.json")),
		Jobs:     jobs.NewManager(),
		Pipeline: &fakePipeline{run: run},
		Encoders: fakeEncoder{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		checker:  checker,
		events:   jobs.NewEventBus(1000),
	}

	job := domain.ProcessingJob{
		TopVideoPath:    "/in/top.mp4",
		BottomVideoPath: "/in/bottom.mp4",
		OutputDir:       outputDir,
		Segments: []domain.TimeSegment{
			{Start: "00:00", End: "00:30"},
			{Start: "00:30", End: "01:00"},
		},
	}
	return app, job
}

func waitForDone(t *testing.T, handle *jobs.Handle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	select {
	case <-handle.Done():
		return handle.Err()
	case <-ctx.Done():
		t.Fatal("job did not finish in time")
		return nil
	}
}

func assertEventTypeExists(t *testing.T, events []jobs.Event, eventType jobs.EventType) jobs.Event {
	t.Helper()
	for _, event := range events {
		if event.Type == eventType {
			return event
		}
	}
	t.Fatalf("no %s event found in %d events", eventType, len(events))
	return jobs.Event{}
}

// TestSubmitRunsJobToCompletion checks the full happy-path event flow.
func TestSubmitRunsJobToCompletion(t *testing.T) {
	app, job := newTestApp(t, func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		for _, stage := range []string{
			pipeline.StageValidating, pipeline.StageProbing, pipeline.StageCombining,
			pipeline.StageSegmenting, pipeline.StageCleanup,
		} {
			req.OnStage(stage)
		}
		req.OnProgress(30)
		req.OnProgress(100)
		return pipeline.Result{
			SegmentPaths: []string{"/out/segment_00.00-00.30.mp4", "/out/segment_00.30-01.00.mp4"},
		}, nil
	})

	handle, err := app.Submit(job)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := waitForDone(t, handle); err != nil {
		t.Fatalf("job error = %v", err)
	}

	if got := app.CurrentJob().Status; got != domain.JobStatusDone {
		t.Fatalf("status = %s, want done", got)
	}

	events := app.JobEvents(0)
	result := assertEventTypeExists(t, events, jobs.EventTypeResult)
	if len(result.OutputPaths) != 2 {
		t.Fatalf("result paths = %v, want 2 segments", result.OutputPaths)
	}

	progress := handle.PollProgress()
	if len(progress) != 2 || progress[len(progress)-1].Percent != 100 {
		t.Fatalf("progress events = %+v, want two ending at 100", progress)
	}
	if status := handle.PollStatus(); len(status) == 0 {
		t.Fatal("no status events delivered to handle")
	}
}

// TestSubmitRejectsSecondJob checks the single job slot end to end.
func TestSubmitRejectsSecondJob(t *testing.T) {
	release := make(chan struct{})
	app, job := newTestApp(t, func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		<-release
		req.OnStage(pipeline.StageCleanup)
		return pipeline.Result{}, nil
	})

	handle, err := app.Submit(job)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if _, err := app.Submit(job); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second Submit() error = %v, want ErrJobAlreadyRunning", err)
	}

	close(release)
	if err := waitForDone(t, handle); err != nil {
		t.Fatalf("job error = %v", err)
	}

	// Terminal state frees the slot.
	if _, err := app.Submit(job); err != nil {
		t.Fatalf("Submit() after completion error = %v", err)
	}
}

// TestSubmitFailureEmitsErrorAndFailedCommand checks failure mapping.
func TestSubmitFailureEmitsErrorAndFailedCommand(t *testing.T) {
	pipeErr := &pipeline.Error{
		Stage:   pipeline.StageCombining,
		Message: "ffmpeg combine failed",
		CommandLog: pipeline.CommandLog{
			Command:  "ffmpeg",
			ExitCode: 1,
			Stderr:   "Invalid data found",
		},
		Err: errors.New("exit status 1"),
	}
	app, job := newTestApp(t, func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		req.OnStage(pipeline.StageValidating)
		req.OnStage(pipeline.StageProbing)
		req.OnStage(pipeline.StageCombining)
		return pipeline.Result{}, pipeErr
	})

	handle, err := app.Submit(job)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := waitForDone(t, handle); err == nil {
		t.Fatal("job should have failed")
	}

	if got := app.CurrentJob().Status; got != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got)
	}

	events := app.JobEvents(0)
	errEvent := assertEventTypeExists(t, events, jobs.EventTypeError)
	if errEvent.Status != domain.JobStatusFailed {
		t.Fatalf("error event status = %s, want failed", errEvent.Status)
	}

	var failedCmd *jobs.Event
	for i := range events {
		if events[i].Type == jobs.EventTypeLog && events[i].Message == "Failed command" {
			failedCmd = &events[i]
			break
		}
	}
	if failedCmd == nil {
		t.Fatal("no failed-command log event published")
	}
	if failedCmd.Stderr != "Invalid data found" || failedCmd.ExitCode != 1 {
		t.Fatalf("failed command event = %+v, want captured stderr", failedCmd)
	}
}

// TestCancelStopsRunningJob checks cooperative cancellation.
func TestCancelStopsRunningJob(t *testing.T) {
	started := make(chan struct{})
	app, job := newTestApp(t, func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		close(started)
		<-ctx.Done()
		return pipeline.Result{}, ctx.Err()
	})

	handle, err := app.Submit(job)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started

	if err := app.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := waitForDone(t, handle); !errors.Is(err, context.Canceled) {
		t.Fatalf("job error = %v, want context.Canceled", err)
	}
	if got := app.CurrentJob().Status; got != domain.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
}

// TestCancelWithoutJob checks the idle-state error.
func TestCancelWithoutJob(t *testing.T) {
	app, _ := newTestApp(t, nil)
	if err := app.Cancel(); !errors.Is(err, jobs.ErrNoRunningJob) {
		t.Fatalf("Cancel() error = %v, want ErrNoRunningJob", err)
	}
}

// TestSubmitRejectsMissingOutputDir checks the pre-flight guard.
func TestSubmitRejectsMissingOutputDir(t *testing.T) {
	app, job := newTestApp(t, nil)
	job.OutputDir = filepath.Join(t.TempDir(), "absent")

	if _, err := app.Submit(job); err == nil {
		t.Fatal("Submit() should fail for missing output directory")
	}
	if app.Jobs.IsRunning() {
		t.Fatal("failed submit must not claim the job slot")
	}
}

// TestListenersReceivePublishedEvents checks the fan-out hook.
func TestListenersReceivePublishedEvents(t *testing.T) {
	app, job := newTestApp(t, func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		req.OnStage(pipeline.StageCleanup)
		return pipeline.Result{SegmentPaths: []string{"/out/a.mp4"}}, nil
	})

	received := make(chan jobs.Event, 64)
	app.AddListener(func(event jobs.Event) { received <- event })

	handle, err := app.Submit(job)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := waitForDone(t, handle); err != nil {
		t.Fatalf("job error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-received:
			if event.Type == jobs.EventTypeResult {
				return
			}
		case <-deadline:
			t.Fatal("listener never saw the result event")
		}
	}
}
