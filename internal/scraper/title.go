package scraper

import (
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/fbparty-go/internal/platform"
)

type titleProbe struct {
	Levels [][]string `json:"levels"`
	OG     string     `json:"og"`
	Doc    string     `json:"doc"`
}

// pickTitle returns the first text line near the player that has a
// plausible length and is not player chrome, falling back to og:title and
// then the document title.
func pickTitle(p *platform.Profile, probe titleProbe) string {
	for _, level := range probe.Levels {
		for _, line := range level {
			line = strings.TrimSpace(line)
			n := utf8.RuneCountInString(line)
			if n < p.TitleMinLength || n > p.TitleMaxLength {
				continue
			}
			if p.TitleDenied(line) {
				continue
			}
			return line
		}
	}
	if t := p.TrimTitleSuffix(probe.OG); t != "" {
		return t
	}
	return p.TrimTitleSuffix(probe.Doc)
}
