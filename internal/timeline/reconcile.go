package timeline

import (
	"math"

	"chartreel/internal/config"
)

// Settings are the fixed composition parameters.
type Settings struct {
	CompositionID string `json:"id"`
	FPS           int    `json:"fps"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	FloorFrames   int    `json:"floorFrames"`
	Codec         string `json:"codec"`
}

// SettingsFromConfig maps the render section onto composition settings.
func SettingsFromConfig(cfg config.Render) Settings {
	return Settings{
		CompositionID: cfg.CompositionID,
		FPS:           cfg.FPS,
		Width:         cfg.Width,
		Height:        cfg.Height,
		FloorFrames:   cfg.FloorFrames,
		Codec:         cfg.Codec,
	}
}

// Composition is what the renderer receives.
type Composition struct {
	ID               string  `json:"id"`
	FPS              int     `json:"fps"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Codec            string  `json:"codec"`
	DurationInFrames int     `json:"durationInFrames"`
	TrackFrames      int     `json:"trackFrames"`
	AudioFrames      int     `json:"audioFrames"`
	Props            Props   `json:"props"`
	DurationSeconds  float64 `json:"durationSeconds"`
}

// TrackFrames is the longest track's scene total in frames.
func TrackFrames(tracks []Track, fps int) int {
	longest := 0
	for _, track := range tracks {
		seconds := 0.0
		for _, scene := range track.Scenes {
			seconds += scene.Seconds()
		}
		if frames := secondsToFrames(seconds, fps); frames > longest {
			longest = frames
		}
	}
	return longest
}

// AudioFrames sums each segment's duration rounded up to whole frames, so
// consecutive segments never overlap.
func AudioFrames(segments []AudioSegment, fps int) int {
	total := 0
	for _, seg := range segments {
		if seg.DurationInSeconds > 0 {
			total += secondsToFrames(seg.DurationInSeconds, fps)
		}
	}
	return total
}

// Frames is max(track frames, audio frames, floorFrames).
func Frames(tracks []Track, segments []AudioSegment, fps, floorFrames int) int {
	return max(TrackFrames(tracks, fps), AudioFrames(segments, fps), floorFrames)
}

// Compose computes the composition for props. It is the only place the
// composition length is derived.
func Compose(props Props, settings Settings) Composition {
	props.Normalize()
	track := TrackFrames(props.Tracks, settings.FPS)
	audio := AudioFrames(props.AudioURLs, settings.FPS)
	frames := max(track, audio, settings.FloorFrames)
	comp := Composition{
		ID:               settings.CompositionID,
		FPS:              settings.FPS,
		Width:            settings.Width,
		Height:           settings.Height,
		Codec:            settings.Codec,
		DurationInFrames: frames,
		TrackFrames:      track,
		AudioFrames:      audio,
		Props:            props,
	}
	if settings.FPS > 0 {
		comp.DurationSeconds = float64(frames) / float64(settings.FPS)
	}
	return comp
}

// secondsToFrames rounds up, tolerating float noise such as 10.000000001*30.
func secondsToFrames(seconds float64, fps int) int {
	if seconds <= 0 || fps <= 0 {
		return 0
	}
	frames := seconds * float64(fps)
	rounded := math.Round(frames)
	if math.Abs(frames-rounded) < 1e-6 {
		return int(rounded)
	}
	return int(math.Ceil(frames))
}
