// Package media classifies, pairs and normalizes CDN stream URLs.
package media

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/raphaelgruber/fbparty-go/internal/platform"
)

// Kind is the track type of a stream candidate.
type Kind string

const (
	KindUnknown Kind = ""
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
)

// Classification sources, from most to least trustworthy.
const (
	ByDescriptor = "descriptor"
	ByHeuristic  = "heuristic"
)

// descriptorParam is the query parameter carrying the per-stream descriptor.
const descriptorParam = "efg"

// StreamCandidate is a URL suspected to be a raw video or audio stream.
type StreamCandidate struct {
	URL          string
	Kind         Kind
	ClassifiedBy string
	AssetID      string
	VideoID      string
	DurationSec  float64
	EncodeTag    string
}

// Video codecs named by encode tags.
const (
	CodecUnknown = ""
	CodecH264    = "h264"
	CodecVP9     = "vp9"
	CodecAV1     = "av1"
)

// Codec returns the video codec named by the encode tag, or CodecUnknown
// when the tag is missing or names none.
func (c StreamCandidate) Codec() string {
	tag := strings.ToLower(c.EncodeTag)
	switch {
	case strings.Contains(tag, "vp9"):
		return CodecVP9
	case strings.Contains(tag, "av1"):
		return CodecAV1
	case strings.Contains(tag, "h264"), strings.Contains(tag, "avc"):
		return CodecH264
	}
	return CodecUnknown
}

// HasDescriptor reports whether metadata was decoded from the URL.
func (c StreamCandidate) HasDescriptor() bool {
	return c.ClassifiedBy == ByDescriptor
}

// Descriptor is the decoded per-stream metadata blob.
type Descriptor struct {
	EncodeTag   string  `json:"vencode_tag"`
	AssetID     flexID  `json:"xpv_asset_id"`
	VideoID     flexID  `json:"video_id"`
	DurationSec float64 `json:"duration_s"`
}

// IsAudio reports whether the encode tag names an audio-only rendition.
func (d Descriptor) IsAudio() bool {
	tag := strings.ToLower(d.EncodeTag)
	return strings.Contains(tag, "audio") || strings.Contains(tag, "heaac")
}

// flexID accepts identifiers serialized as either JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

var descriptorParamRe = regexp.MustCompile(`[?&]` + descriptorParam + `=([^&#]+)`)

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeDescriptor extracts and decodes the stream descriptor carried on
// rawURL. It reports false when the parameter is missing or undecodable;
// many CDN URLs carry none, so that is not an error.
func DecodeDescriptor(rawURL string) (Descriptor, bool) {
	value := descriptorValue(rawURL)
	if value == "" {
		return Descriptor{}, false
	}

	for _, candidate := range []string{value, unescapeOnce(value)} {
		for _, enc := range base64Encodings {
			raw, err := enc.DecodeString(candidate)
			if err != nil {
				continue
			}
			var d Descriptor
			if err := json.Unmarshal(raw, &d); err != nil {
				continue
			}
			if d.EncodeTag == "" && d.AssetID == "" && d.VideoID == "" {
				continue
			}
			return d, true
		}
	}
	return Descriptor{}, false
}

// descriptorValue reads the raw parameter rather than url.Values, which
// would turn the '+' of standard base64 into spaces.
func descriptorValue(rawURL string) string {
	m := descriptorParamRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return unescapeOnce(m[1])
}

func unescapeOnce(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

// Classify builds a candidate for rawURL. The decoded descriptor decides the
// kind when it names an encode tag; otherwise extension and path markers do.
func Classify(rawURL string, p *platform.Profile) StreamCandidate {
	c := StreamCandidate{URL: rawURL}

	if d, ok := DecodeDescriptor(rawURL); ok {
		c.AssetID = string(d.AssetID)
		c.VideoID = string(d.VideoID)
		c.DurationSec = d.DurationSec
		c.EncodeTag = d.EncodeTag
		if d.EncodeTag != "" {
			c.ClassifiedBy = ByDescriptor
			c.Kind = KindVideo
			if d.IsAudio() {
				c.Kind = KindAudio
			}
			return c
		}
	}

	c.ClassifiedBy = ByHeuristic
	switch {
	case p.HasAudioExtension(rawURL), p.HasAudioMarker(rawURL):
		c.Kind = KindAudio
	case p.HasVideoExtension(rawURL):
		c.Kind = KindVideo
	}
	return c
}

// IsManifest reports whether rawURL is an adaptive streaming manifest.
func IsManifest(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "m3u8") || strings.Contains(strings.ToLower(rawURL), ".mpd")
}

// IsDirect reports whether rawURL can be fetched as a plain file: an http(s)
// URL that is not a manifest. Player blob: and data: URLs are not direct.
func IsDirect(rawURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	return !IsManifest(lower)
}
