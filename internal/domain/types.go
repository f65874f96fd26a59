package domain

// JobStatus tracks each pipeline stage for a single processing job.
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusValidating JobStatus = "validating"
	JobStatusProbing    JobStatus = "probing"
	JobStatusCombining  JobStatus = "combining"
	JobStatusSegmenting JobStatus = "segmenting"
	JobStatusCleanup    JobStatus = "cleanup"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// TimeSegment is one MM:SS bounded extraction window.
type TimeSegment struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Range renders the segment as it appeared in user input.
func (s TimeSegment) Range() string {
	return s.Start + "-" + s.End
}

// ProcessingJob aggregates the user inputs for one pipeline run.
// AudioPath is optional; when set it replaces the top video's audio.
type ProcessingJob struct {
	TopVideoPath    string        `json:"topVideoPath"`
	BottomVideoPath string        `json:"bottomVideoPath"`
	AudioPath       string        `json:"audioPath,omitempty"`
	OutputDir       string        `json:"outputDir"`
	Segments        []TimeSegment `json:"segments"`
}

// EncoderProfile is the codec+preset pair selected once per job run.
type EncoderProfile struct {
	Codec  string `json:"codec"`
	Preset string `json:"preset"`
}

// Dimensions holds the probed size of one video stream.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Geometry is the per-half crop size derived once per job and reused
// for every ffmpeg invocation in that job.
type Geometry struct {
	SegmentWidth  int `json:"segmentWidth"`
	SegmentHeight int `json:"segmentHeight"`
}

// Settings contains user-selectable runtime configuration. OutputDir
// is the default destination used when a job does not name its own.
type Settings struct {
	FFmpegPath  string `json:"ffmpegPath"`
	FFprobePath string `json:"ffprobePath"`
	OutputDir   string `json:"outputDir"`
	ListenAddr  string `json:"listenAddr"`
}

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}
