package tts

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ProxyPath is the daemon route that serves cached-or-synthesized narration.
const ProxyPath = "/api/tts"

// ProxyRequest is the decoded form of a /api/tts URL.
type ProxyRequest struct {
	Text     string
	Language string
	Speed    float64
}

// ProxyURL builds the relative /api/tts URL for a narration chunk. Speed 1 is
// omitted so editor-generated URLs stay short.
func ProxyURL(text, lang string, speed float64) string {
	q := url.Values{}
	q.Set("text", text)
	q.Set("lang", lang)
	if speed > 0 && speed != 1 {
		q.Set("speed", strconv.FormatFloat(speed, 'f', -1, 64))
	}
	return ProxyPath + "?" + q.Encode()
}

// IsProxyURL reports whether raw points at the /api/tts route.
func IsProxyURL(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), ProxyPath)
}

// ParseProxyURL decodes a /api/tts URL. Missing lang yields defaultLang and a
// missing or invalid speed yields defaultSpeed.
func ParseProxyURL(raw, defaultLang string, defaultSpeed float64) (ProxyRequest, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ProxyRequest{}, fmt.Errorf("parse tts url: %w", err)
	}
	if u.Path != ProxyPath {
		return ProxyRequest{}, fmt.Errorf("parse tts url: unexpected path %q", u.Path)
	}
	return ParseProxyQuery(u.Query(), defaultLang, defaultSpeed)
}

// ParseProxyQuery decodes the /api/tts query parameters.
func ParseProxyQuery(q url.Values, defaultLang string, defaultSpeed float64) (ProxyRequest, error) {
	req := ProxyRequest{
		Text:     q.Get("text"),
		Language: NormalizeLanguage(q.Get("lang"), defaultLang),
		Speed:    defaultSpeed,
	}
	if strings.TrimSpace(req.Text) == "" {
		return ProxyRequest{}, fmt.Errorf("parse tts url: missing text")
	}
	if raw := strings.TrimSpace(q.Get("speed")); raw != "" {
		if speed, err := strconv.ParseFloat(raw, 64); err == nil && speed > 0 {
			req.Speed = speed
		}
	}
	if req.Speed <= 0 {
		req.Speed = 1
	}
	return req, nil
}
