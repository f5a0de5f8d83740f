// Package tempo changes narration playback speed with ffmpeg's atempo filter
// while preserving pitch.
package tempo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"chartreel/internal/services"
)

// Speed bounds accepted by a single atempo stage.
const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

var commandContext = exec.CommandContext

// ClampSpeed bounds speed to [MinSpeed, MaxSpeed].
func ClampSpeed(speed float64) float64 {
	switch {
	case speed < MinSpeed:
		return MinSpeed
	case speed > MaxSpeed:
		return MaxSpeed
	default:
		return speed
	}
}

// Filter runs ffmpeg to retime MP3 audio.
type Filter struct {
	Binary string
}

// NewFilter returns a Filter that runs the given ffmpeg binary.
func NewFilter(binary string) *Filter {
	return &Filter{Binary: binary}
}

// Retime writes src played at speed (clamped) to dst as MP3. dst is written in
// place; callers that need atomic visibility pass a temp path.
func (f *Filter) Retime(ctx context.Context, src, dst string, speed float64) error {
	binary := strings.TrimSpace(f.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-i", src,
		"-filter:a", "atempo=" + strconv.FormatFloat(ClampSpeed(speed), 'f', -1, 64),
		"-vn", "-f", "mp3",
		dst,
	}
	cmd := commandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "tempo", "atempo", "ffmpeg cancelled", ctx.Err())
		}
		return services.Wrap(services.ErrExternalTool, "tempo", "atempo", fmt.Sprintf("ffmpeg failed: %s", detail), err)
	}
	return nil
}
