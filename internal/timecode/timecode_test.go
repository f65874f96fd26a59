package timecode

import (
	"errors"
	"strings"
	"testing"
)

// TestConvertValidTimestamps checks MM:SS to seconds conversion.
func TestConvertValidTimestamps(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"00:30", 30},
		{"01:00", 60},
		{"01:30", 90},
		{"10:05", 605},
		{"99:59", 5999},
	}

	for _, tc := range cases {
		got, err := Convert(tc.in)
		if err != nil {
			t.Fatalf("Convert(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Convert(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

// TestConvertFormatRoundTrip checks the bijection over the full MM:SS range.
func TestConvertFormatRoundTrip(t *testing.T) {
	for seconds := 0; seconds < 6000; seconds++ {
		text := Format(seconds)
		got, err := Convert(text)
		if err != nil {
			t.Fatalf("Convert(Format(%d)) error = %v", seconds, err)
		}
		if got != seconds {
			t.Fatalf("round trip %d -> %q -> %d", seconds, text, got)
		}
	}
}

// TestConvertRejectsSecondsOverflow checks the seconds < 60 invariant.
func TestConvertRejectsSecondsOverflow(t *testing.T) {
	for _, in := range []string{"00:60", "01:99", "10:60"} {
		if _, err := Convert(in); !errors.Is(err, ErrInvalidTimestamp) {
			t.Fatalf("Convert(%q) error = %v, want ErrInvalidTimestamp", in, err)
		}
	}
}

// TestConvertRejectsMalformedInput checks field count and numeric checks.
func TestConvertRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "123", "1:2:3", "ab:cd", "01:xx", "xx:01"} {
		if _, err := Convert(in); !errors.Is(err, ErrInvalidTimestamp) {
			t.Fatalf("Convert(%q) error = %v, want ErrInvalidTimestamp", in, err)
		}
	}
}

// TestParseSegmentsPreservesOrder checks ordering and blank-line handling.
func TestParseSegmentsPreservesOrder(t *testing.T) {
	text := "00:00-00:30\n\n  00:30-01:00\n01:00-01:30\n"
	segments, err := ParseSegments(text)
	if err != nil {
		t.Fatalf("ParseSegments() error = %v", err)
	}

	if len(segments) != 3 {
		t.Fatalf("len = %d, want 3", len(segments))
	}
	want := []string{"00:00-00:30", "00:30-01:00", "01:00-01:30"}
	for i, segment := range segments {
		if segment.Range() != want[i] {
			t.Fatalf("segment %d = %q, want %q", i, segment.Range(), want[i])
		}
	}
}

// TestParseSegmentsFailFastNamesBadLine checks whole-parse failure semantics.
func TestParseSegmentsFailFastNamesBadLine(t *testing.T) {
	_, err := ParseSegments("00:00-00:30\nbad-line\n")
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("error = %v, want ErrInvalidFormat", err)
	}
	if !strings.Contains(err.Error(), "bad-line") {
		t.Fatalf("error %q does not name the offending line", err.Error())
	}
}

// TestParseSegmentsValidatesEndpoints checks MM:SS validation of matched lines.
func TestParseSegmentsValidatesEndpoints(t *testing.T) {
	_, err := ParseSegments("00:70-00:80\n")
	if !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("error = %v, want ErrInvalidTimestamp", err)
	}
}

// TestParseSegmentsEmptyInput checks the no-ranges failure.
func TestParseSegmentsEmptyInput(t *testing.T) {
	for _, text := range []string{"", "\n\n", "   \n"} {
		if _, err := ParseSegments(text); !errors.Is(err, ErrNoTimestamps) {
			t.Fatalf("ParseSegments(%q) error = %v, want ErrNoTimestamps", text, err)
		}
	}
}
