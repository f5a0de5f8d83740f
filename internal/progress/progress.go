package progress

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Version is the structured event version written by Emitter.
const Version = 1

// Phase names a stage of the render.
type Phase string

const (
	PhaseBundling  Phase = "bundling"
	PhaseRendering Phase = "rendering"
	PhaseEncoding  Phase = "encoding"
)

// Event types.
const (
	TypeProgress = "progress"
	TypeError    = "error"
)

// Event is one parsed output line.
type Event struct {
	V           int     `json:"v"`
	Type        string  `json:"type"`
	Phase       Phase   `json:"phase,omitempty"`
	Percent     float64 `json:"percent"`
	Frames      int     `json:"frames,omitempty"`
	TotalFrames int     `json:"total_frames,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// Overall is the event's position on the 0-100 job scale.
func (e Event) Overall() int {
	return Overall(e.Phase, e.Percent)
}

type weight struct {
	offset float64
	span   float64
}

var weights = map[Phase]weight{
	PhaseBundling:  {offset: 0, span: 20},
	PhaseRendering: {offset: 20, span: 60},
	PhaseEncoding:  {offset: 80, span: 20},
}

// Overall maps a phase-local percent onto the job scale: bundling 0-20,
// rendering 20-80, encoding 80-100. Unknown phases map to 0.
func Overall(phase Phase, percent float64) int {
	w, ok := weights[phase]
	if !ok {
		return 0
	}
	if math.IsNaN(percent) {
		percent = 0
	}
	percent = min(max(percent, 0), 100)
	return int(math.Round(w.offset + percent*w.span/100))
}

var legacyPattern = regexp.MustCompile(`(Bundling|Rendering|Encoding):\s*(\d+(?:\.\d+)?)%(?:\s*\((\d+)/(\d+) frames\))?`)

// Parse classifies a line. Structured events win over legacy markers, and
// progress markers win over error markers. ok is false for plain diagnostics.
func Parse(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Event{}, false
	}
	if strings.HasPrefix(trimmed, "{") {
		if ev, ok := parseStructured(trimmed); ok {
			return ev, true
		}
	}
	if m := legacyPattern.FindStringSubmatch(trimmed); m != nil {
		percent, _ := strconv.ParseFloat(m[2], 64)
		ev := Event{
			V:       0,
			Type:    TypeProgress,
			Phase:   Phase(strings.ToLower(m[1])),
			Percent: percent,
		}
		if m[3] != "" {
			ev.Frames, _ = strconv.Atoi(m[3])
			ev.TotalFrames, _ = strconv.Atoi(m[4])
		}
		return ev, true
	}
	if IsErrorLine(trimmed) {
		return Event{Type: TypeError, Message: trimmed}, true
	}
	return Event{}, false
}

// IsErrorLine reports whether a free-text line carries an error marker.
// Log records count only at ERROR level, whatever their attributes say.
func IsErrorLine(line string) bool {
	if level, ok := logLevel(line); ok {
		return level == "error"
	}
	return strings.Contains(line, "Error") || strings.Contains(line, "error") || strings.Contains(line, "❌")
}

// logLevel extracts the level from a console ("<RFC3339> WARN ...") or JSON
// log record.
func logLevel(line string) (string, bool) {
	if strings.HasPrefix(line, "{") {
		var rec struct {
			Level string `json:"level"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.Level == "" {
			return "", false
		}
		return strings.ToLower(rec.Level), true
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false
	}
	if _, err := time.Parse(time.RFC3339, fields[0]); err != nil {
		return "", false
	}
	switch fields[1] {
	case "DEBUG", "INFO", "WARN", "ERROR":
		return strings.ToLower(fields[1]), true
	}
	return "", false
}

func parseStructured(line string) (Event, bool) {
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return Event{}, false
	}
	if ev.V != Version {
		return Event{}, false
	}
	switch ev.Type {
	case TypeProgress:
		if _, ok := weights[ev.Phase]; !ok {
			return Event{}, false
		}
		return ev, true
	case TypeError:
		ev.Message = strings.TrimSpace(ev.Message)
		if ev.Message == "" {
			ev.Message = "render job reported an error"
		}
		return ev, true
	default:
		return Event{}, false
	}
}
