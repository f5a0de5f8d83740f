package timeline

import (
	"encoding/json"
	"fmt"
)

// DefaultSceneSeconds applies to scenes saved without a duration.
const DefaultSceneSeconds = 5

// Scene is one chart segment on a track. Style fields the renderer adds later
// are preserved in Extra so a load/save round trip never drops them.
type Scene struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Title          string   `json:"title,omitempty"`
	Duration       float64  `json:"duration"`
	XAxis          string   `json:"xAxis,omitempty"`
	YAxis          string   `json:"yAxis,omitempty"`
	YColumns       []string `json:"yColumns,omitempty"`
	ChartColor     string   `json:"chartColor,omitempty"`
	TextColor      string   `json:"textColor,omitempty"`
	ShowValues     *bool    `json:"showValues,omitempty"`
	ShowLabels     *bool    `json:"showLabels,omitempty"`
	AnimationSpeed string   `json:"animationSpeed,omitempty"`
	AnimationType  string   `json:"animationType,omitempty"`
	BarRoundness   *float64 `json:"barRoundness,omitempty"`
	BarGap         *float64 `json:"barGap,omitempty"`
	LineWidth      *float64 `json:"lineWidth,omitempty"`
	DotSize        *float64 `json:"dotSize,omitempty"`
	PieInnerRadius *float64 `json:"pieInnerRadius,omitempty"`
	PiePadAngle    *float64 `json:"piePadAngle,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type sceneFields Scene

var sceneKeys = []string{
	"id", "type", "title", "duration", "xAxis", "yAxis", "yColumns", "chartColor", "textColor",
	"showValues", "showLabels", "animationSpeed", "animationType", "barRoundness", "barGap",
	"lineWidth", "dotSize", "pieInnerRadius", "piePadAngle",
}

func (s *Scene) UnmarshalJSON(data []byte) error {
	var fields sceneFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range sceneKeys {
		delete(all, key)
	}
	if len(all) > 0 {
		fields.Extra = all
	}
	*s = Scene(fields)
	return nil
}

func (s Scene) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(sceneFields(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(s.Extra)+len(sceneKeys))
	for key, value := range s.Extra {
		merged[key] = value
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for key, value := range fields {
		merged[key] = value
	}
	return json.Marshal(merged)
}

// Seconds is the scene duration with the default applied.
func (s Scene) Seconds() float64 {
	if s.Duration <= 0 {
		return DefaultSceneSeconds
	}
	return s.Duration
}

// Track is an ordered list of scenes.
type Track struct {
	ID     string  `json:"id"`
	Name   string  `json:"name,omitempty"`
	Scenes []Scene `json:"scenes"`
}

// AudioSegment is one narration chunk. URL is /api/tts?... until the render
// job rewrites it to /audio/<digest>.mp3.
type AudioSegment struct {
	Index             int     `json:"index"`
	URL               string  `json:"url"`
	ShortText         string  `json:"shortText,omitempty"`
	Lang              string  `json:"lang,omitempty"`
	Speed             float64 `json:"speed,omitempty"`
	DurationInSeconds float64 `json:"durationInSeconds"`
}

// SubtitleSettings styles the burned-in narration captions.
type SubtitleSettings struct {
	TextColor       string  `json:"textColor"`
	BackgroundColor string  `json:"backgroundColor"`
	BorderColor     string  `json:"borderColor"`
	BorderWidth     float64 `json:"borderWidth"`
	FontSize        float64 `json:"fontSize"`
	MarginBottom    float64 `json:"marginBottom"`
	ShowBackground  bool    `json:"showBackground"`
}

// DefaultSubtitleSettings matches the editor's initial caption style.
func DefaultSubtitleSettings() SubtitleSettings {
	return SubtitleSettings{
		TextColor:       "#000000",
		BackgroundColor: "#ffffff",
		BorderColor:     "transparent",
		FontSize:        45,
	}
}

// Props is the persisted timeline document handed to the renderer.
type Props struct {
	Tracks           []Track          `json:"tracks"`
	CSVData          []map[string]any `json:"csvData"`
	AudioURLs        []AudioSegment   `json:"audioUrls"`
	SubtitleSettings SubtitleSettings `json:"subtitleSettings"`
	TTSSpeed         float64          `json:"ttsSpeed"`
}

// DefaultProps is what a render sees when nothing has been saved.
func DefaultProps() Props {
	return Props{
		Tracks:           []Track{},
		CSVData:          []map[string]any{},
		AudioURLs:        []AudioSegment{},
		SubtitleSettings: DefaultSubtitleSettings(),
		TTSSpeed:         1,
	}
}

// Normalize fills nil slices and defaults so the renderer never sees null.
func (p *Props) Normalize() {
	if p.Tracks == nil {
		p.Tracks = []Track{}
	}
	for i := range p.Tracks {
		if p.Tracks[i].Scenes == nil {
			p.Tracks[i].Scenes = []Scene{}
		}
	}
	if p.CSVData == nil {
		p.CSVData = []map[string]any{}
	}
	if p.AudioURLs == nil {
		p.AudioURLs = []AudioSegment{}
	}
	if p.TTSSpeed <= 0 {
		p.TTSSpeed = 1
	}
	if p.SubtitleSettings == (SubtitleSettings{}) {
		p.SubtitleSettings = DefaultSubtitleSettings()
	}
}

// Validate rejects documents the renderer cannot use.
func (p Props) Validate() error {
	for ti, track := range p.Tracks {
		for si, scene := range track.Scenes {
			switch scene.Type {
			case "", "bar", "line", "pie":
			default:
				return fmt.Errorf("tracks[%d].scenes[%d]: unsupported chart type %q", ti, si, scene.Type)
			}
			if scene.Duration < 0 {
				return fmt.Errorf("tracks[%d].scenes[%d]: negative duration", ti, si)
			}
		}
	}
	for i, seg := range p.AudioURLs {
		if seg.DurationInSeconds < 0 {
			return fmt.Errorf("audioUrls[%d]: negative duration", i)
		}
	}
	return nil
}

// SceneCount totals scenes across tracks.
func (p Props) SceneCount() int {
	total := 0
	for _, track := range p.Tracks {
		total += len(track.Scenes)
	}
	return total
}
