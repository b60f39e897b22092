package media

import (
	"net/url"
	"regexp"
	"strings"
)

// rangeParams are the byte-range parameters the CDN appends per request.
var rangeParams = map[string]bool{"bytestart": true, "byteend": true}

var rangeParamRes = []*regexp.Regexp{
	regexp.MustCompile(`[&?]bytestart=\d+`),
	regexp.MustCompile(`[&?]byteend=\d+`),
}

// Normalize strips the transient byte-range parameters from rawURL so the
// stored URL addresses the whole stream. Other parameters keep their order
// and encoding, since the CDN signs them. Normalize is idempotent and falls
// back to pattern stripping when rawURL does not parse.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return stripRangeParams(rawURL)
	}
	if u.RawQuery == "" {
		return rawURL
	}

	pairs := strings.Split(u.RawQuery, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil && rangeParams[k] {
			continue
		}
		kept = append(kept, pair)
	}
	if len(kept) == len(pairs) {
		return rawURL
	}

	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	return u.String()
}

func stripRangeParams(rawURL string) string {
	out := rawURL
	for _, re := range rangeParamRes {
		out = re.ReplaceAllString(out, "")
	}
	if out == rawURL {
		return rawURL
	}
	// Dropping the first parameter can leave "path&rest".
	if !strings.Contains(out, "?") {
		if i := strings.Index(out, "&"); i >= 0 {
			out = out[:i] + "?" + out[i+1:]
		}
	}
	return out
}
