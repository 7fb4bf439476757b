package chunker

import "strings"

// Window slides a fixed window of size characters across text, advancing by
// size-overlap each step. An overlap that is negative or not smaller than
// size is replaced with size/4. Each step consumes a local index; blank
// slices are dropped and the rest are emitted trimmed.
//
// Windows are measured in runes, so a multi-byte character is never split.
func Window(text string, size, overlap int) []Segment {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}
	step := size - overlap

	runes := []rune(normalizeNewlines(text))

	var segments []Segment
	for start, idx := 0, 0; start < len(runes); start, idx = start+step, idx+1 {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if content := strings.TrimSpace(string(runes[start:end])); content != "" {
			segments = append(segments, Segment{LocalIndex: idx, Content: content})
		}
		if end == len(runes) {
			break
		}
	}
	return segments
}
