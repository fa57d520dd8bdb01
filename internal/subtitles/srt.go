package subtitles

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Segment is one timed span of transcript text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Cue is one parsed SRT block.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Every component is
// truncated, never rounded, so 1.9999 renders as 00:00:01,999.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	hours := math.Floor(seconds / 3600)
	minutes := math.Floor(math.Mod(seconds, 3600) / 60)
	secs := math.Floor(math.Mod(seconds, 60))
	millis := math.Floor(math.Mod(seconds, 1) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", int64(hours), int64(minutes), int64(secs), int64(millis))
}

// Format renders segments as SRT text. Segment order is preserved; text is
// trimmed; timing is not validated.
func Format(segments []Segment) string {
	if len(segments) == 0 {
		return ""
	}
	lines := make([]string, 0, len(segments)*4)
	for i, seg := range segments {
		lines = append(lines,
			strconv.Itoa(i+1),
			FormatTimestamp(seg.Start)+" --> "+FormatTimestamp(seg.End),
			strings.TrimSpace(seg.Text),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// ParseTimestamp is the inverse of FormatTimestamp. A period is accepted in
// place of the comma.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if minutes > 59 || seconds > 59 || millis > 999 || hours < 0 || minutes < 0 || seconds < 0 || millis < 0 {
		return 0, fmt.Errorf("timestamp out of range %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// ParseCues parses SRT content into cues. Blocks are separated by blank lines;
// CRLF line endings are accepted.
func ParseCues(content string) ([]Cue, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var cues []Cue
	for n, block := range splitBlocks(content) {
		lines := strings.Split(block, "\n")
		if len(lines) < 2 {
			return cues, fmt.Errorf("block %d: expected index and timing lines", n+1)
		}
		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			return cues, fmt.Errorf("block %d: invalid index %q", n+1, lines[0])
		}
		start, end, ok := strings.Cut(lines[1], "-->")
		if !ok {
			return cues, fmt.Errorf("block %d: missing timing arrow", n+1)
		}
		startSec, err := ParseTimestamp(start)
		if err != nil {
			return cues, fmt.Errorf("block %d: start: %w", n+1, err)
		}
		endSec, err := ParseTimestamp(end)
		if err != nil {
			return cues, fmt.Errorf("block %d: end: %w", n+1, err)
		}
		cues = append(cues, Cue{
			Index: index,
			Start: startSec,
			End:   endSec,
			Text:  strings.Join(lines[2:], "\n"),
		})
	}
	return cues, nil
}

func splitBlocks(content string) []string {
	var blocks []string
	var current []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

// ValidateContent checks SRT text structurally. An empty result means the
// content parsed and indexes run 1..n.
func ValidateContent(content string) []string {
	if strings.TrimSpace(content) == "" {
		return []string{"empty_subtitle_file"}
	}
	cues, err := ParseCues(content)
	if err != nil {
		return []string{fmt.Sprintf("parse_error: %v", err)}
	}
	var issues []string
	for i, cue := range cues {
		if cue.Index != i+1 {
			issues = append(issues, fmt.Sprintf("index_gap: block %d has index %d", i+1, cue.Index))
			break
		}
	}
	return issues
}

// ValidateFile reads path and runs ValidateContent.
func ValidateFile(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{fmt.Sprintf("read_error: %v", err)}
	}
	return ValidateContent(string(data))
}
