package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"shorts-creator/internal/domain"
	"shorts-creator/internal/geometry"
	"shorts-creator/internal/timecode"
)

// Stage names reported through Request.OnStage.
const (
	StageValidating = "validating"
	StageProbing    = "probing"
	StageCombining  = "combining"
	StageSegmenting = "segmenting"
	StageCleanup    = "cleanup"
)

// ErrToolNotFound is returned when ffmpeg cannot be invoked at all.
var ErrToolNotFound = errors.New("ffmpeg not found")

// ErrInvalidSegmentDuration is returned for ranges whose end does not
// come after their start.
var ErrInvalidSegmentDuration = errors.New("invalid segment duration")

const (
	tempArtifactName = "temp_combined.mp4"
	audioCodec       = "aac"

	// Reported progress is simulated rather than derived from ffmpeg
	// output: the combine phase creeps toward a ceiling while the
	// encoder runs, snaps to a fixed checkpoint when it exits, and the
	// remaining share is spread linearly across segments.
	combineProgressStep    = 0.1
	combineProgressCeiling = 98.0
	combineCheckpoint      = 30.0
	segmentProgressShare   = 70.0
	segmentRampTicks       = 10
)

// Request contains input media, encoder selection, and execution
// callbacks for one run.
type Request struct {
	TopVideoPath    string
	BottomVideoPath string
	AudioPath       string
	OutputDir       string
	Segments        []domain.TimeSegment
	Profile         domain.EncoderProfile
	OnStage         func(stage string)
	OnStatus        func(message string)
	OnProgress      func(percent float64)
	OnLog           func(log CommandLog)
}

// Result contains output segment paths, the applied crop geometry, and
// command logs.
type Result struct {
	SegmentPaths []string
	Geometry     domain.Geometry
	Logs         []CommandLog
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Error is a stage-aware error with optional command and segment context.
type Error struct {
	Stage         string     `json:"stage"`
	Message       string     `json:"message"`
	CommandLog    CommandLog `json:"commandLog"`
	SegmentIndex  int        `json:"segmentIndex,omitempty"`
	TotalSegments int        `json:"totalSegments,omitempty"`
	SegmentRange  string     `json:"segmentRange,omitempty"`
	Err           error      `json:"-"`
}

// Error formats pipeline failures for logs and API responses.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := fmt.Sprintf("%s: %s", e.Stage, e.Message)
	if e.SegmentRange != "" {
		msg = fmt.Sprintf("%s: segment %d/%d (%s): %s", e.Stage, e.SegmentIndex, e.TotalSegments, e.SegmentRange, e.Message)
	}
	if e.CommandLog.Command == "" {
		return msg
	}
	return fmt.Sprintf("%s (cmd=%s exit=%d)", msg, e.CommandLog.Command, e.CommandLog.ExitCode)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// runningCommand supervises one asynchronously started process.
type runningCommand interface {
	Done() <-chan struct{}
	Wait() (commandResult, error)
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
	Start(ctx context.Context, name string, args ...string) (runningCommand, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return toCommandResult(&stdout, &stderr, err), err
}

// Start launches one command and returns a handle for polling.
func (r *execRunner) Start(ctx context.Context, name string, args ...string) (runningCommand, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	running := &execRunning{done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		running.result = toCommandResult(&stdout, &stderr, err)
		running.err = err
		close(running.done)
	}()
	return running, nil
}

// execRunning is the os/exec implementation of runningCommand. Result
// fields are written before done closes, so readers that wait on Done
// observe them safely.
type execRunning struct {
	done   chan struct{}
	result commandResult
	err    error
}

func (r *execRunning) Done() <-chan struct{} {
	return r.done
}

func (r *execRunning) Wait() (commandResult, error) {
	<-r.done
	return r.result, r.err
}

func toCommandResult(stdout, stderr *bytes.Buffer, err error) commandResult {
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
	}
	return result
}

// dimensionProber abstracts ffprobe stream inspection.
type dimensionProber interface {
	Dimensions(ctx context.Context, path string) (domain.Dimensions, error)
}

// Pipeline orchestrates ffmpeg combining and segmenting of two inputs.
type Pipeline struct {
	ffmpegPath string
	prober     dimensionProber
	runner     commandRunner
	logger     *slog.Logger
	tick       time.Duration
	sleep      func(d time.Duration)
	stat       func(name string) (os.FileInfo, error)
	remove     func(name string) error
}

// New constructs the production pipeline with OS dependencies.
func New(ffmpegPath string, prober dimensionProber, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		ffmpegPath: ffmpegPath,
		prober:     prober,
		runner:     &execRunner{},
		logger:     logger,
		tick:       100 * time.Millisecond,
		sleep:      time.Sleep,
		stat:       os.Stat,
		remove:     os.Remove,
	}
}

// Run validates inputs, combines them into a stacked composite, and
// slices the composite into the requested segments.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	emitStage(req.OnStage, StageValidating)
	emitStatus(req.OnStatus, "Validating inputs...")

	if _, err := p.runner.Run(ctx, p.ffmpegPath, "-version"); err != nil {
		return Result{}, &Error{
			Stage:   StageValidating,
			Message: fmt.Sprintf("cannot invoke ffmpeg at %q", p.ffmpegPath),
			Err:     fmt.Errorf("%w: %v", ErrToolNotFound, err),
		}
	}
	if err := p.validateRequest(req); err != nil {
		return Result{}, err
	}

	tempPath := filepath.Join(req.OutputDir, tempArtifactName)

	// Cleanup always runs, success or failure. Removal errors are
	// logged and never fail the job.
	defer func() {
		emitStage(req.OnStage, StageCleanup)
		emitStatus(req.OnStatus, "Cleaning up...")
		if err := p.remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove temp artifact", "path", tempPath, "error", err)
		}
	}()

	emitStage(req.OnStage, StageProbing)
	emitStatus(req.OnStatus, "Analyzing input videos...")

	topDims, err := p.prober.Dimensions(ctx, req.TopVideoPath)
	if err != nil {
		return Result{}, &Error{
			Stage:   StageProbing,
			Message: fmt.Sprintf("cannot probe top video: %s", req.TopVideoPath),
			Err:     err,
		}
	}
	bottomDims, err := p.prober.Dimensions(ctx, req.BottomVideoPath)
	if err != nil {
		return Result{}, &Error{
			Stage:   StageProbing,
			Message: fmt.Sprintf("cannot probe bottom video: %s", req.BottomVideoPath),
			Err:     err,
		}
	}
	geom := geometry.Plan(topDims, bottomDims)

	emitStage(req.OnStage, StageCombining)
	emitStatus(req.OnStatus, "Combining videos...")

	combineLog, err := p.combine(ctx, req, geom, tempPath)
	logs := []CommandLog{combineLog}
	emitLog(req.OnLog, combineLog)
	if err != nil {
		return Result{}, err
	}
	emitProgress(req.OnProgress, combineCheckpoint)

	emitStage(req.OnStage, StageSegmenting)

	segmentPaths := make([]string, 0, len(req.Segments))
	total := len(req.Segments)
	for i, segment := range req.Segments {
		if err := ctx.Err(); err != nil {
			return Result{}, &Error{
				Stage:   StageSegmenting,
				Message: "processing cancelled",
				Err:     err,
			}
		}

		emitStatus(req.OnStatus, fmt.Sprintf("Processing segment %d/%d...", i+1, total))

		outPath, segmentLog, err := p.extractSegment(ctx, req, tempPath, segment, i, total)
		if segmentLog.Command != "" {
			logs = append(logs, segmentLog)
			emitLog(req.OnLog, segmentLog)
		}
		if err != nil {
			return Result{}, err
		}
		segmentPaths = append(segmentPaths, outPath)

		p.rampSegmentProgress(req.OnProgress, i, total)
	}

	return Result{
		SegmentPaths: segmentPaths,
		Geometry:     geom,
		Logs:         logs,
	}, nil
}

// validateRequest checks paths, extensions, and the segment list.
func (p *Pipeline) validateRequest(req Request) error {
	fail := func(message string, err error) error {
		return &Error{Stage: StageValidating, Message: message, Err: err}
	}

	if strings.TrimSpace(req.TopVideoPath) == "" || strings.TrimSpace(req.BottomVideoPath) == "" {
		return fail("both top and bottom video paths are required", nil)
	}
	for _, path := range []string{req.TopVideoPath, req.BottomVideoPath} {
		if !strings.HasSuffix(path, ".mp4") {
			return fail(fmt.Sprintf("video must be an .mp4 file: %s", path), nil)
		}
		if _, err := p.stat(path); err != nil {
			return fail(fmt.Sprintf("cannot access video: %s", path), err)
		}
	}

	if req.AudioPath != "" {
		ext := strings.ToLower(filepath.Ext(req.AudioPath))
		switch ext {
		case ".mp3", ".wav", ".m4a", ".aac":
		default:
			return fail(fmt.Sprintf("unsupported audio format %q: %s", ext, req.AudioPath), nil)
		}
		if _, err := p.stat(req.AudioPath); err != nil {
			return fail(fmt.Sprintf("cannot access audio: %s", req.AudioPath), err)
		}
	}

	if len(req.Segments) == 0 {
		return fail("at least one time segment is required", timecode.ErrNoTimestamps)
	}

	info, err := p.stat(req.OutputDir)
	if err != nil {
		return fail(fmt.Sprintf("cannot access output directory: %s", req.OutputDir), err)
	}
	if !info.IsDir() {
		return fail(fmt.Sprintf("output path is not a directory: %s", req.OutputDir), nil)
	}

	return nil
}

// combine runs the stacked composite encode and simulates progress
// while the encoder is busy.
func (p *Pipeline) combine(ctx context.Context, req Request, geom domain.Geometry, tempPath string) (CommandLog, error) {
	args := buildCombineArgs(req, geom, tempPath)

	running, err := p.runner.Start(ctx, p.ffmpegPath, args...)
	if err != nil {
		return CommandLog{Command: p.ffmpegPath, Args: args, ExitCode: -1}, &Error{
			Stage:      StageCombining,
			Message:    "failed to start ffmpeg combine",
			CommandLog: CommandLog{Command: p.ffmpegPath, Args: args, ExitCode: -1},
			Err:        err,
		}
	}

	percent := 0.0
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
supervise:
	for {
		select {
		case <-running.Done():
			break supervise
		case <-ticker.C:
			if percent < combineProgressCeiling {
				percent += combineProgressStep
				if percent > combineProgressCeiling {
					percent = combineProgressCeiling
				}
				emitProgress(req.OnProgress, percent)
			}
		}
	}

	result, runErr := running.Wait()
	log := CommandLog{
		Command:  p.ffmpegPath,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	if runErr != nil {
		return log, &Error{
			Stage:      StageCombining,
			Message:    "ffmpeg combine failed",
			CommandLog: log,
			Err:        runErr,
		}
	}
	if _, err := p.stat(tempPath); err != nil {
		return log, &Error{
			Stage:      StageCombining,
			Message:    "ffmpeg completed but combined output is missing",
			CommandLog: log,
			Err:        err,
		}
	}
	return log, nil
}

// extractSegment slices one time range out of the combined composite.
func (p *Pipeline) extractSegment(ctx context.Context, req Request, tempPath string, segment domain.TimeSegment, index, total int) (string, CommandLog, error) {
	startSec, err := timecode.Convert(segment.Start)
	if err != nil {
		return "", CommandLog{}, p.segmentError(segment, index, total, "invalid segment start", CommandLog{}, err)
	}
	endSec, err := timecode.Convert(segment.End)
	if err != nil {
		return "", CommandLog{}, p.segmentError(segment, index, total, "invalid segment end", CommandLog{}, err)
	}
	duration := endSec - startSec
	if duration <= 0 {
		return "", CommandLog{}, p.segmentError(segment, index, total, "segment end must come after its start", CommandLog{}, ErrInvalidSegmentDuration)
	}

	outPath := filepath.Join(req.OutputDir, segmentFileName(segment))
	args := buildSegmentArgs(req.Profile, tempPath, startSec, duration, outPath)

	result, runErr := p.runner.Run(ctx, p.ffmpegPath, args...)
	log := CommandLog{
		Command:  p.ffmpegPath,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	if runErr != nil {
		return "", log, p.segmentError(segment, index, total, "ffmpeg segment extraction failed", log, runErr)
	}
	return outPath, log, nil
}

func (p *Pipeline) segmentError(segment domain.TimeSegment, index, total int, message string, log CommandLog, err error) error {
	return &Error{
		Stage:         StageSegmenting,
		Message:       message,
		CommandLog:    log,
		SegmentIndex:  index + 1,
		TotalSegments: total,
		SegmentRange:  segment.Range(),
		Err:           err,
	}
}

// rampSegmentProgress walks progress linearly across this segment's
// share of the post-combine band.
func (p *Pipeline) rampSegmentProgress(onProgress func(float64), index, total int) {
	base := combineCheckpoint + segmentProgressShare*float64(index)/float64(total)
	next := combineCheckpoint + segmentProgressShare*float64(index+1)/float64(total)

	for tick := 1; tick <= segmentRampTicks; tick++ {
		p.sleep(p.tick)
		percent := base + (next-base)*float64(tick)/float64(segmentRampTicks)
		if tick == segmentRampTicks {
			// land exactly on the boundary, free of float drift
			percent = next
		}
		emitProgress(onProgress, percent)
	}
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}

// emitStatus forwards status line updates when callback is configured.
func emitStatus(cb func(message string), message string) {
	if cb != nil {
		cb(message)
	}
}

// emitProgress forwards progress updates when callback is configured.
func emitProgress(cb func(percent float64), percent float64) {
	if cb != nil {
		cb(percent)
	}
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// buildCombineArgs builds the crop/vstack composite encode CLI args.
func buildCombineArgs(req Request, geom domain.Geometry, tempPath string) []string {
	args := []string{
		"-hwaccel", "auto",
		"-i", req.TopVideoPath,
		"-i", req.BottomVideoPath,
	}
	if req.AudioPath != "" {
		args = append(args, "-i", req.AudioPath)
	}

	args = append(args, "-filter_complex", buildFilterGraph(geom), "-map", "[v]")
	if req.AudioPath != "" {
		args = append(args, "-map", "2:a")
	} else {
		args = append(args, "-map", "0:a")
	}

	return append(args,
		"-c:v", req.Profile.Codec,
		"-preset", req.Profile.Preset,
		"-c:a", audioCodec,
		"-y", tempPath,
	)
}

// buildFilterGraph centers a crop on each input and stacks them.
func buildFilterGraph(geom domain.Geometry) string {
	crop := func(label, out string) string {
		return fmt.Sprintf(
			"[%s]crop=%d:%d:(in_w-%d)/2:(in_h-%d)/2[%s]",
			label,
			geom.SegmentWidth, geom.SegmentHeight,
			geom.SegmentWidth, geom.SegmentHeight,
			out,
		)
	}
	return crop("0:v", "top") + ";" + crop("1:v", "bottom") + ";[top][bottom]vstack[v]"
}

// buildSegmentArgs builds the CLI args for one segment extraction.
func buildSegmentArgs(profile domain.EncoderProfile, tempPath string, startSec, duration int, outPath string) []string {
	return []string{
		"-hwaccel", "auto",
		"-ss", strconv.Itoa(startSec),
		"-i", tempPath,
		"-t", strconv.Itoa(duration),
		"-c:v", profile.Codec,
		"-preset", profile.Preset,
		"-c:a", audioCodec,
		"-avoid_negative_ts", "1",
		"-async", "1",
		"-vsync", "cfr",
		"-max_muxing_queue_size", "1024",
		"-y", outPath,
	}
}

// segmentFileName builds the output name for one range, with colons
// replaced so the name stays portable across filesystems.
func segmentFileName(segment domain.TimeSegment) string {
	start := strings.ReplaceAll(segment.Start, ":", ".")
	end := strings.ReplaceAll(segment.End, ":", ".")
	return fmt.Sprintf("segment_%s-%s.mp4", start, end)
}

// NewForTests constructs a pipeline with injectable dependencies.
func NewForTests(
	ffmpegPath string,
	prober dimensionProber,
	runner commandRunner,
	logger *slog.Logger,
	tick time.Duration,
	sleep func(d time.Duration),
	stat func(name string) (os.FileInfo, error),
	remove func(name string) error,
) *Pipeline {
	return &Pipeline{
		ffmpegPath: ffmpegPath,
		prober:     prober,
		runner:     runner,
		logger:     logger,
		tick:       tick,
		sleep:      sleep,
		stat:       stat,
		remove:     remove,
	}
}
