package ttscache

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"net/url"
	"strconv"

	"chartreel/internal/tts"
)

// SpeedTolerance is how close to 1.0 a speed must be for the synthesized
// audio to be stored without retiming.
const SpeedTolerance = 0.01

// Key identifies one narration asset.
type Key struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
}

// Digest returns the hex md5 of text + language + speed, with speed in its
// shortest decimal form (1, 1.5, 0.75).
func (k Key) Digest() string {
	sum := md5.Sum([]byte(k.Text + k.Language + FormatSpeed(k.Speed)))
	return hex.EncodeToString(sum[:])
}

// FileName is the cache file name for the key.
func (k Key) FileName() string {
	return k.Digest() + ".mp3"
}

// NeedsRetime reports whether the key's speed requires an atempo pass.
func (k Key) NeedsRetime() bool {
	return math.Abs(k.Speed-1.0) >= SpeedTolerance
}

// FormatSpeed renders speed the way it participates in the digest.
func FormatSpeed(speed float64) string {
	return strconv.FormatFloat(speed, 'f', -1, 64)
}

// ProxyKey derives the cache key for a /api/tts URL. A URL without a speed
// parameter means speed 1, whoever resolves it.
func ProxyKey(raw, defaultLang string) (Key, error) {
	req, err := tts.ParseProxyURL(raw, defaultLang, 1)
	if err != nil {
		return Key{}, err
	}
	return Key{Text: req.Text, Language: req.Language, Speed: req.Speed}, nil
}

// ProxyQueryKey is ProxyKey for query parameters already split off the URL.
func ProxyQueryKey(q url.Values, defaultLang string) (Key, error) {
	req, err := tts.ParseProxyQuery(q, defaultLang, 1)
	if err != nil {
		return Key{}, err
	}
	return Key{Text: req.Text, Language: req.Language, Speed: req.Speed}, nil
}
