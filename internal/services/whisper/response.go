package whisper

import (
	"encoding/json"
	"fmt"
	"strings"

	"cuebatch/internal/subtitles"
)

// verboseResponse is the verbose_json payload shape. Only segment timing and
// text are used.
type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func decodeSegments(body []byte) ([]subtitles.Segment, error) {
	var resp verboseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse verbose_json: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("api error: %s", strings.TrimSpace(resp.Error.Message))
	}
	segments := make([]subtitles.Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		segments = append(segments, subtitles.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}
	return segments, nil
}
