package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shorts-creator/internal/config"
	"shorts-creator/internal/diagnostics"
	"shorts-creator/internal/domain"
	"shorts-creator/internal/encoder"
	"shorts-creator/internal/jobs"
	"shorts-creator/internal/metrics"
	"shorts-creator/internal/pipeline"
	"shorts-creator/internal/probe"
)

// App wires configuration, jobs, the pipeline, and event delivery.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Pipeline    pipelineRunner
	Encoders    encoderDetector
	Diagnostics domain.DiagnosticReport

	logger  *slog.Logger
	checker *diagnostics.Checker

	mu          sync.Mutex
	activeJobID string
	cancel      context.CancelFunc
	events      *jobs.EventBus
	listeners   []func(jobs.Event)
}

// pipelineRunner isolates the processing pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// encoderDetector isolates hardware encoder discovery.
type encoderDetector interface {
	Profile(ctx context.Context) domain.EncoderProfile
	HardwareAvailable(ctx context.Context) bool
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	store := config.NewJSONStore(filepath.Join(homeDir, ".shorts-creator", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	return &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Pipeline:    pipeline.New(settings.FFmpegPath, probe.NewProber(settings.FFprobePath), logger),
		Encoders:    encoder.NewDetector(settings.FFmpegPath),
		Diagnostics: report,
		logger:      logger,
		checker:     checker,
		events:      jobs.NewEventBus(1000),
	}, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// Submit validates a processing job, claims the single job slot, and
// runs the pipeline asynchronously. The returned handle exposes
// progress and status feeds plus terminal completion.
func (a *App) Submit(job domain.ProcessingJob) (*jobs.Handle, error) {
	a.mu.Lock()
	settings := a.Settings
	a.mu.Unlock()

	if job.OutputDir == "" {
		job.OutputDir = settings.OutputDir
	}
	if a.checker != nil {
		if err := a.checker.CheckOutputDir(job.OutputDir); err != nil {
			return nil, err
		}
	}

	jobID := fmt.Sprintf("job-%d", time.Now().UnixNano())
	if err := a.Jobs.Start(jobID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.activeJobID = jobID
	a.cancel = cancel
	a.mu.Unlock()

	handle := jobs.NewHandle(jobID, a.events)
	a.publishStatus(jobID, domain.JobStatusValidating, "Job started")
	metrics.JobsInFlight.Inc()

	go a.runJob(ctx, jobID, job, handle)
	return handle, nil
}

// Cancel cancels the currently running job, if any.
func (a *App) Cancel() error {
	a.mu.Lock()
	cancel := a.cancel
	activeJobID := a.activeJobID
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoRunningJob
	}

	cancel()
	if err := a.Jobs.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		return err
	}

	if activeJobID != "" {
		a.publishStatus(activeJobID, domain.JobStatusCancelled, "Cancellation requested")
	}
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// AddListener registers a callback invoked for every published event.
// Listeners must not block.
func (a *App) AddListener(fn func(jobs.Event)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// runJob executes the pipeline and maps outcomes to job events.
func (a *App) runJob(ctx context.Context, jobID string, job domain.ProcessingJob, handle *jobs.Handle) {
	profile := a.Encoders.Profile(ctx)
	if a.Encoders.HardwareAvailable(ctx) {
		metrics.HardwareEncoderAvailable.Set(1)
	} else {
		metrics.HardwareEncoderAvailable.Set(0)
	}

	started := time.Now()
	req := pipeline.Request{
		TopVideoPath:    job.TopVideoPath,
		BottomVideoPath: job.BottomVideoPath,
		AudioPath:       job.AudioPath,
		OutputDir:       job.OutputDir,
		Segments:        job.Segments,
		Profile:         profile,
		OnStage: func(stage string) {
			status, ok := mapStageToStatus(stage)
			if !ok {
				return
			}
			if err := a.Jobs.Transition(status); err == nil {
				a.publishStatus(jobID, status, "Running "+stage+" stage")
			}
		},
		OnStatus: func(message string) {
			a.publishStatus(jobID, a.Jobs.Current().Status, message)
		},
		OnProgress: func(percent float64) {
			a.publishEvent(jobs.Event{
				JobID:   jobID,
				Type:    jobs.EventTypeProgress,
				Percent: percent,
			})
		},
		OnLog: func(log pipeline.CommandLog) {
			a.publishEvent(jobs.Event{
				JobID:    jobID,
				Type:     jobs.EventTypeLog,
				Message:  "Command completed",
				Command:  log.Command,
				Args:     log.Args,
				ExitCode: log.ExitCode,
				Stdout:   log.Stdout,
				Stderr:   log.Stderr,
			})
		},
	}

	result, err := a.Pipeline.Run(ctx, req)
	defer func() {
		metrics.JobsInFlight.Dec()
		a.clearActiveJob(jobID)
	}()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			_ = a.Jobs.Transition(domain.JobStatusCancelled)
			a.publishStatus(jobID, domain.JobStatusCancelled, "Job cancelled")
			metrics.JobsTotal.WithLabelValues("cancelled").Inc()
			handle.Finish(err)
			return
		}

		_ = a.Jobs.Transition(domain.JobStatusFailed)
		a.publishStatus(jobID, domain.JobStatusFailed, "Job failed")
		a.publishEvent(jobs.Event{
			JobID:   jobID,
			Type:    jobs.EventTypeError,
			Status:  domain.JobStatusFailed,
			Message: err.Error(),
		})

		var pipeErr *pipeline.Error
		if errors.As(err, &pipeErr) && pipeErr.CommandLog.Command != "" {
			a.publishEvent(jobs.Event{
				JobID:         jobID,
				Type:          jobs.EventTypeLog,
				Message:       "Failed command",
				Command:       pipeErr.CommandLog.Command,
				Args:          pipeErr.CommandLog.Args,
				ExitCode:      pipeErr.CommandLog.ExitCode,
				Stdout:        pipeErr.CommandLog.Stdout,
				Stderr:        pipeErr.CommandLog.Stderr,
				Segment:       pipeErr.SegmentIndex,
				TotalSegments: pipeErr.TotalSegments,
			})
		}

		metrics.JobsTotal.WithLabelValues("failed").Inc()
		handle.Finish(err)
		return
	}

	if err := a.Jobs.Transition(domain.JobStatusDone); err == nil {
		a.publishStatus(jobID, domain.JobStatusDone, "Job completed")
	}
	a.publishEvent(jobs.Event{
		JobID:       jobID,
		Type:        jobs.EventTypeResult,
		Status:      domain.JobStatusDone,
		Message:     fmt.Sprintf("Created %d segments", len(result.SegmentPaths)),
		OutputPaths: result.SegmentPaths,
	})

	metrics.JobsTotal.WithLabelValues("done").Inc()
	metrics.SegmentsExtractedTotal.Add(float64(len(result.SegmentPaths)))
	metrics.JobDurationSeconds.Observe(time.Since(started).Seconds())
	handle.Finish(nil)
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and notifies registered listeners.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	listeners := append([]func(jobs.Event){}, a.listeners...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(published)
	}
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
		a.cancel = nil
	}
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// mapStageToStatus maps pipeline stage names to job statuses.
func mapStageToStatus(stage string) (domain.JobStatus, bool) {
	switch stage {
	case pipeline.StageValidating:
		return domain.JobStatusValidating, true
	case pipeline.StageProbing:
		return domain.JobStatusProbing, true
	case pipeline.StageCombining:
		return domain.JobStatusCombining, true
	case pipeline.StageSegmenting:
		return domain.JobStatusSegmenting, true
	case pipeline.StageCleanup:
		return domain.JobStatusCleanup, true
	default:
		return "", false
	}
}
