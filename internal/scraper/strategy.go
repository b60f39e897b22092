package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/browser"
	"github.com/raphaelgruber/fbparty-go/internal/media"
	"github.com/raphaelgruber/fbparty-go/internal/platform"
)

// Hit is what a strategy found. Video, when set, carries the decoded
// metadata used to pair audio.
type Hit struct {
	VideoURL   string
	AudioURL   string
	Video      *media.StreamCandidate
	Candidates []string
}

// Strategy is one way of finding the video stream on a loaded page.
// A strategy that finds nothing returns a nil Hit and no error.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, pc *PageContext) (*Hit, error)
}

// DefaultStrategies returns the cascade in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		networkStrategy{},
		domStrategy{},
		interceptedStrategy{},
		htmlStrategy{},
		globalsStrategy{},
	}
}

// PageContext is the loaded page plus the stream candidates observed on
// the wire so far.
type PageContext struct {
	Page        browser.Page
	Profile     *platform.Profile
	SettleDelay time.Duration
	Logger      *slog.Logger

	seen       map[string]bool
	candidates []media.StreamCandidate
}

func newPageContext(page browser.Page, profile *platform.Profile, settle time.Duration, logger *slog.Logger) *PageContext {
	return &PageContext{
		Page:        page,
		Profile:     profile,
		SettleDelay: settle,
		Logger:      logger,
		seen:        make(map[string]bool),
	}
}

// refresh classifies requests observed since the last call. Only CDN URLs
// with a media extension are candidates; duplicates are dropped.
func (pc *PageContext) refresh() {
	for _, u := range pc.Page.Requests() {
		if pc.seen[u] {
			continue
		}
		pc.seen[u] = true
		if !pc.Profile.IsCDN(u) || !(pc.Profile.HasVideoExtension(u) || pc.Profile.HasAudioExtension(u)) {
			continue
		}
		pc.candidates = append(pc.candidates, media.Classify(u, pc.Profile))
	}
}

// VideoCandidates returns observed video streams in request order.
func (pc *PageContext) VideoCandidates() []media.StreamCandidate {
	return pc.byKind(media.KindVideo)
}

// AudioCandidates returns observed audio streams in request order.
func (pc *PageContext) AudioCandidates() []media.StreamCandidate {
	return pc.byKind(media.KindAudio)
}

// ObservedURLs returns the URLs of every observed candidate.
func (pc *PageContext) ObservedURLs() []string {
	pc.refresh()
	out := make([]string, len(pc.candidates))
	for i, c := range pc.candidates {
		out[i] = c.URL
	}
	return out
}

func (pc *PageContext) byKind(k media.Kind) []media.StreamCandidate {
	pc.refresh()
	var out []media.StreamCandidate
	for _, c := range pc.candidates {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// networkStrategy takes observed video streams whose kind was read from
// their decoded descriptor.
type networkStrategy struct{}

func (networkStrategy) Name() string { return "network" }

func (networkStrategy) Attempt(ctx context.Context, pc *PageContext) (*Hit, error) {
	for _, c := range pc.VideoCandidates() {
		if c.HasDescriptor() && media.IsDirect(c.URL) {
			return &Hit{VideoURL: c.URL, Video: &c}, nil
		}
	}
	return nil, nil
}

// domStrategy starts the player and reads the source of the video element.
type domStrategy struct{}

func (domStrategy) Name() string { return "dom" }

func (domStrategy) Attempt(ctx context.Context, pc *PageContext) (*Hit, error) {
	var found bool
	if err := pc.Page.Evaluate(ctx, playVideoScript, &found); err != nil {
		return nil, fmt.Errorf("play video: %w", err)
	}
	if !found {
		return nil, nil
	}
	if err := browser.Sleep(ctx, pc.SettleDelay); err != nil {
		return nil, err
	}

	var sources []string
	if err := pc.Page.Evaluate(ctx, videoSourcesScript, &sources); err != nil {
		return nil, fmt.Errorf("read video sources: %w", err)
	}
	for _, src := range sources {
		if media.IsDirect(src) {
			c := media.Classify(src, pc.Profile)
			return &Hit{VideoURL: src, Video: &c}, nil
		}
	}
	return nil, nil
}

// interceptedStrategy takes any observed mp4 stream that is not audio.
type interceptedStrategy struct{}

func (interceptedStrategy) Name() string { return "intercepted" }

func (interceptedStrategy) Attempt(ctx context.Context, pc *PageContext) (*Hit, error) {
	var hit *Hit
	var urls []string
	for _, c := range pc.VideoCandidates() {
		if !pc.Profile.HasVideoExtension(c.URL) || !media.IsDirect(c.URL) {
			continue
		}
		urls = append(urls, c.URL)
		if hit == nil {
			hit = &Hit{VideoURL: c.URL, Video: &c}
		}
	}
	if hit != nil {
		hit.Candidates = urls
	}
	return hit, nil
}

// htmlStrategy scans the rendered document for CDN URLs and known JSON keys.
type htmlStrategy struct{}

func (htmlStrategy) Name() string { return "html" }

func (htmlStrategy) Attempt(ctx context.Context, pc *PageContext) (*Hit, error) {
	doc, err := pc.Page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	p := pc.Profile
	unescaped := platform.UnescapeBlob(doc)

	var hit *Hit
	matches := firstNonEmpty(p.VideoURLs(doc), p.VideoURLs(unescaped))
	if u := firstDirect(matches); u != "" {
		hit = &Hit{VideoURL: u, Candidates: matches}
	} else if u, ok := p.VideoFromJSONKeys(unescaped); ok && media.IsDirect(u) {
		hit = &Hit{VideoURL: u}
	}
	if hit == nil {
		return nil, nil
	}

	audio := firstNonEmpty(p.AudioURLs(doc), p.AudioURLs(unescaped))
	if u := firstDirect(audio); u != "" {
		hit.AudioURL = u
	} else if u, ok := p.AudioFromJSONKeys(unescaped); ok && media.IsDirect(u) {
		hit.AudioURL = u
	}
	return hit, nil
}

// globalsStrategy serializes the page's global data objects inside the
// page and scans the blob for CDN video URLs.
type globalsStrategy struct{}

func (globalsStrategy) Name() string { return "globals" }

func (globalsStrategy) Attempt(ctx context.Context, pc *PageContext) (*Hit, error) {
	if len(pc.Profile.GlobalObjects) == 0 {
		return nil, nil
	}
	var blob string
	if err := pc.Page.Evaluate(ctx, globalsScript(pc.Profile.GlobalObjects), &blob); err != nil {
		return nil, fmt.Errorf("serialize globals: %w", err)
	}
	if blob == "" {
		return nil, nil
	}
	matches := pc.Profile.VideoURLs(platform.UnescapeBlob(blob))
	if u := firstDirect(matches); u != "" {
		return &Hit{VideoURL: u, Candidates: matches}, nil
	}
	return nil, nil
}

func firstDirect(urls []string) string {
	for _, u := range urls {
		if media.IsDirect(u) {
			return u
		}
	}
	return ""
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
