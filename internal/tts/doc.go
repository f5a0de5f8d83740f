// Package tts turns narration text into baseline speech audio.
//
// Synthesizer is the provider seam; GoogleTranslate is the default provider
// and is throttled with a token bucket so a render fan-out cannot hammer the
// upstream. The package also owns narration chunking and the /api/tts proxy
// URL format shared by the editor preview and the render job.
package tts
