package timecode

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"shorts-creator/internal/domain"
)

// ErrInvalidTimestamp is returned for MM:SS values that cannot be parsed.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// ErrInvalidFormat is returned when a range line does not match MM:SS-MM:SS.
var ErrInvalidFormat = errors.New("invalid timestamp range")

// ErrNoTimestamps is returned when the input contains no ranges at all.
var ErrNoTimestamps = errors.New("no timestamps provided")

var rangePattern = regexp.MustCompile(`^(\d{2}:\d{2})-(\d{2}:\d{2})`)

// Convert parses an MM:SS timestamp into whole seconds.
func Convert(timestamp string) (int, error) {
	parts := strings.Split(timestamp, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %s (use MM:SS format)", ErrInvalidTimestamp, timestamp)
	}

	minutes, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %s (use MM:SS format with numbers only)", ErrInvalidTimestamp, timestamp)
	}
	seconds, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %s (use MM:SS format with numbers only)", ErrInvalidTimestamp, timestamp)
	}
	if seconds >= 60 {
		return 0, fmt.Errorf("%w: seconds must be less than 60 in %s", ErrInvalidTimestamp, timestamp)
	}

	return minutes*60 + seconds, nil
}

// Format renders whole seconds back into MM:SS.
func Format(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ParseSegments parses free text with one MM:SS-MM:SS range per line.
// Blank lines are skipped; the first malformed line fails the whole
// parse. Input order is preserved and determines segment numbering.
func ParseSegments(text string) ([]domain.TimeSegment, error) {
	segments := make([]domain.TimeSegment, 0)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		match := rangePattern.FindStringSubmatch(line)
		if match == nil {
			return nil, fmt.Errorf("%w: %s (use MM:SS-MM:SS, e.g. 00:30-01:00)", ErrInvalidFormat, line)
		}

		start, end := match[1], match[2]
		if _, err := Convert(start); err != nil {
			return nil, err
		}
		if _, err := Convert(end); err != nil {
			return nil, err
		}

		segments = append(segments, domain.TimeSegment{Start: start, End: end})
	}

	if len(segments) == 0 {
		return nil, ErrNoTimestamps
	}
	return segments, nil
}
