// Package platform describes the target video site: where its media lives,
// how a logged-in page looks and which embedded keys carry stream URLs.
// Layout changes on the site are absorbed here, not in the locator.
package platform

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed facebook.yaml
var defaultProfileYAML []byte

// Headers is the browser-like request profile the CDN expects.
type Headers struct {
	UserAgent      string `yaml:"user_agent"`
	Referer        string `yaml:"referer"`
	Origin         string `yaml:"origin"`
	AcceptLanguage string `yaml:"accept_language"`
	AcceptVideo    string `yaml:"accept_video"`
	AcceptAudio    string `yaml:"accept_audio"`
}

// Profile is the per-site configuration of the acquisition pipeline.
type Profile struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	MatchHosts []string `yaml:"match_hosts"`

	LandingURL        string   `yaml:"landing_url"`
	LoginMarkers      []string `yaml:"login_markers"`
	LoggedInSelectors []string `yaml:"logged_in_selectors"`
	CookieDomains     []string `yaml:"cookie_domains"`
	AuthCookies       []string `yaml:"auth_cookies"`

	CDNHosts        []string `yaml:"cdn_hosts"`
	VideoExtensions []string `yaml:"video_extensions"`
	AudioExtensions []string `yaml:"audio_extensions"`
	AudioMarkers    []string `yaml:"audio_markers"`

	VideoJSONKeys []string `yaml:"video_json_keys"`
	AudioJSONKeys []string `yaml:"audio_json_keys"`
	GlobalObjects []string `yaml:"global_objects"`

	TitleMinLength    int      `yaml:"title_min_length"`
	TitleMaxLength    int      `yaml:"title_max_length"`
	TitleMaxAncestors int      `yaml:"title_max_ancestors"`
	TitleSuffixes     []string `yaml:"title_suffixes"`
	TitleDenylist     []string `yaml:"title_denylist"`

	Headers Headers `yaml:"headers"`

	videoURLRe   *regexp.Regexp
	audioURLRe   *regexp.Regexp
	videoKeyRes  []*regexp.Regexp
	audioKeyRes  []*regexp.Regexp
	titleDenyRes []*regexp.Regexp
}

// Default returns the embedded Facebook profile.
func Default() (*Profile, error) {
	return Parse(defaultProfileYAML)
}

// Load reads a profile from path, or returns Default when path is empty.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes, validates and compiles a YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate reports missing required settings and fills optional defaults.
func (p *Profile) Validate() error {
	var errs []error
	if p.LandingURL == "" {
		errs = append(errs, errors.New("landing_url is required"))
	}
	if len(p.LoggedInSelectors) == 0 {
		errs = append(errs, errors.New("at least one logged_in_selector is required"))
	}
	if len(p.CDNHosts) == 0 {
		errs = append(errs, errors.New("at least one cdn_host is required"))
	}
	if len(p.VideoExtensions) == 0 {
		errs = append(errs, errors.New("at least one video_extension is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid profile %q: %w", p.ID, err)
	}

	if p.TitleMinLength <= 0 {
		p.TitleMinLength = 10
	}
	if p.TitleMaxLength <= 0 {
		p.TitleMaxLength = 300
	}
	if p.TitleMaxAncestors <= 0 {
		p.TitleMaxAncestors = 8
	}
	return nil
}

const urlChars = `[^"'\s<>\\]`

func (p *Profile) compile() error {
	hosts := quoteAll(p.CDNHosts)
	p.videoURLRe = mediaURLRegexp(hosts, quoteAll(p.VideoExtensions))
	if len(p.AudioExtensions) > 0 {
		p.audioURLRe = mediaURLRegexp(hosts, quoteAll(p.AudioExtensions))
	}

	for _, key := range p.VideoJSONKeys {
		p.videoKeyRes = append(p.videoKeyRes, jsonKeyRegexp(key))
	}
	for _, key := range p.AudioJSONKeys {
		p.audioKeyRes = append(p.audioKeyRes, jsonKeyRegexp(key))
	}

	for _, expr := range p.TitleDenylist {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return fmt.Errorf("compile title deny pattern %q: %w", expr, err)
		}
		p.titleDenyRes = append(p.titleDenyRes, re)
	}
	return nil
}

// mediaURLRegexp matches an absolute URL on one of hosts whose path ends in
// one of exts, keeping any query string.
func mediaURLRegexp(hosts, exts []string) *regexp.Regexp {
	return regexp.MustCompile(`https?://` + urlChars + `*(?:` + strings.Join(hosts, "|") + `)` +
		urlChars + `*?(?:` + strings.Join(exts, "|") + `)(?:\?` + urlChars + `*)?`)
}

func jsonKeyRegexp(key string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"([^"]+)"`)
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = regexp.QuoteMeta(s)
	}
	return out
}

// MatchesURL reports whether raw is a page on this platform.
func (p *Profile) MatchesURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return hostMatches(u.Hostname(), p.MatchHosts)
}

// AllowsCookieDomain reports whether a cookie for domain belongs to this
// platform. An empty cookie_domains list allows everything.
func (p *Profile) AllowsCookieDomain(domain string) bool {
	if len(p.CookieDomains) == 0 {
		return true
	}
	return hostMatches(strings.TrimPrefix(domain, "."), p.CookieDomains)
}

func hostMatches(host string, suffixes []string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// IsCDN reports whether raw points at one of the media CDN hosts.
func (p *Profile) IsCDN(raw string) bool {
	for _, h := range p.CDNHosts {
		if strings.Contains(raw, h) {
			return true
		}
	}
	return false
}

// HasVideoExtension reports whether raw carries a video container extension.
func (p *Profile) HasVideoExtension(raw string) bool {
	return containsAny(raw, p.VideoExtensions)
}

// HasAudioExtension reports whether raw carries an audio-only extension.
func (p *Profile) HasAudioExtension(raw string) bool {
	return containsAny(raw, p.AudioExtensions)
}

// HasAudioMarker reports whether raw contains a path marker the CDN uses
// for audio-only representations.
func (p *Profile) HasAudioMarker(raw string) bool {
	return containsAny(raw, p.AudioMarkers)
}

// IsLoginURL reports whether a landed page is the login or checkpoint wall.
func (p *Profile) IsLoginURL(raw string) bool {
	return containsAny(raw, p.LoginMarkers)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// VideoURLs returns every CDN video URL in blob, in order of appearance.
func (p *Profile) VideoURLs(blob string) []string {
	return cleanMatches(p.videoURLRe.FindAllString(blob, -1))
}

// AudioURLs returns every CDN audio URL in blob, in order of appearance.
func (p *Profile) AudioURLs(blob string) []string {
	if p.audioURLRe == nil {
		return nil
	}
	return cleanMatches(p.audioURLRe.FindAllString(blob, -1))
}

// VideoFromJSONKeys tries the video keys in priority order and returns the
// first value that looks like a media URL.
func (p *Profile) VideoFromJSONKeys(blob string) (string, bool) {
	return firstKeyMatch(blob, p.videoKeyRes, func(u string) bool {
		return p.HasVideoExtension(u) || p.IsCDN(u)
	})
}

// AudioFromJSONKeys is VideoFromJSONKeys for the audio keys.
func (p *Profile) AudioFromJSONKeys(blob string) (string, bool) {
	return firstKeyMatch(blob, p.audioKeyRes, func(u string) bool {
		return p.HasAudioExtension(u) || p.IsCDN(u)
	})
}

func firstKeyMatch(blob string, res []*regexp.Regexp, accept func(string) bool) (string, bool) {
	for _, re := range res {
		for _, m := range re.FindAllStringSubmatch(blob, -1) {
			u := strings.ReplaceAll(m[1], `\`, "")
			if accept(u) {
				return u, true
			}
		}
	}
	return "", false
}

var unicodeEscapeRe = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)

// UnescapeBlob undoes the JSON string escaping that hides URLs inside
// inline scripts: escaped slashes and \uXXXX sequences other than quotes
// and backslashes, which would break the surrounding structure.
func UnescapeBlob(blob string) string {
	blob = strings.ReplaceAll(blob, `\/`, "/")
	return unicodeEscapeRe.ReplaceAllStringFunc(blob, func(m string) string {
		n, err := strconv.ParseUint(m[2:], 16, 32)
		if err != nil || n == '"' || n == '\\' || n < 0x20 {
			return m
		}
		return string(rune(n))
	})
}

func cleanMatches(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, m := range in {
		m = strings.ReplaceAll(m, "&amp;", "&")
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// TitleDenied reports whether line looks like player chrome rather than a title.
func (p *Profile) TitleDenied(line string) bool {
	for _, re := range p.titleDenyRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// TrimTitleSuffix removes a trailing site name from a document title.
func (p *Profile) TrimTitleSuffix(title string) string {
	title = strings.TrimSpace(title)
	for _, s := range p.TitleSuffixes {
		title = strings.TrimSuffix(title, s)
	}
	return strings.TrimSpace(title)
}
