package timeline

import "chartreel/internal/tts"

// NarrationSegments splits text into request-sized chunks and points one
// segment at the preview proxy per chunk. Durations stay zero until a render
// measures the audio.
func NarrationSegments(text, lang string, speed float64) []AudioSegment {
	if speed <= 0 {
		speed = 1
	}
	chunks := tts.SplitNarration(text)
	segments := make([]AudioSegment, 0, len(chunks))
	for _, chunk := range chunks {
		segments = append(segments, AudioSegment{
			Index:     chunk.Index,
			URL:       tts.ProxyURL(chunk.Text, lang, speed),
			ShortText: chunk.Text,
			Lang:      lang,
			Speed:     speed,
		})
	}
	return segments
}
