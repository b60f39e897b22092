package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/browser"
	"github.com/raphaelgruber/fbparty-go/internal/media"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/raphaelgruber/fbparty-go/internal/platform"
)

// Location is a resolved set of directly downloadable streams.
type Location struct {
	VideoURL   string        `json:"video_url"`
	VideoCodec string        `json:"video_codec,omitempty"`
	AudioURL   string        `json:"audio_url,omitempty"`
	Title      string        `json:"title,omitempty"`
	Strategy   string        `json:"strategy"`
	Pairing    media.Pairing `json:"pairing"`
	Candidates []string      `json:"candidates,omitempty"`
}

// LocatorOptions bounds the page work of a locate.
type LocatorOptions struct {
	NavTimeout  time.Duration
	SettleDelay time.Duration
}

// Locator resolves page URLs to media streams by running a strategy
// cascade over one logged-in page.
type Locator struct {
	sessions   *Sessions
	launcher   browser.Launcher
	profile    *platform.Profile
	opts       LocatorOptions
	strategies []Strategy
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewLocator creates a locator running DefaultStrategies.
func NewLocator(sessions *Sessions, l browser.Launcher, profile *platform.Profile, opts LocatorOptions, mc *metrics.Collector, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		sessions:   sessions,
		launcher:   launcher{l},
		profile:    profile,
		opts:       opts,
		strategies: DefaultStrategies(),
		metrics:    mc,
		logger:     logger,
	}
}

// WithStrategies replaces the cascade.
func (l *Locator) WithStrategies(s ...Strategy) *Locator {
	l.strategies = s
	return l
}

// Locate loads the stored session, opens pageURL and runs the strategy
// cascade. The first strategy yielding a direct video URL wins.
func (l *Locator) Locate(ctx context.Context, pageURL string) (loc *Location, err error) {
	start := time.Now()
	defer func() {
		l.metrics.RecordResult(metrics.OpLocate, time.Since(start), err)
	}()

	cookies, err := l.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}

	opts := browser.Options{Cookies: cookies, ObserveRequests: true}
	err = browser.With(ctx, l.launcher, opts, func(page browser.Page) error {
		if err := page.Navigate(ctx, pageURL, l.opts.NavTimeout); err != nil {
			return &NavigationError{URL: pageURL, Err: err}
		}
		if err := browser.Sleep(ctx, l.opts.SettleDelay); err != nil {
			return err
		}
		if landed, err := page.Location(ctx); err == nil && l.profile.IsLoginURL(landed) {
			l.logger.Warn("page redirected to login", "page_url", pageURL, "landed", landed)
			return ErrNotAuthenticated
		}

		pc := newPageContext(page, l.profile, l.opts.SettleDelay, l.logger)
		hit, name, err := l.cascade(ctx, pc)
		if err != nil {
			return err
		}
		if hit == nil {
			l.logger.Warn("no video url found",
				"page_url", pageURL,
				"video_candidates", len(pc.VideoCandidates()),
				"audio_candidates", len(pc.AudioCandidates()))
			return ErrNoMediaFound
		}

		loc = l.resolve(pc, hit, name)
		loc.Title = l.title(ctx, page)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("video located",
		"page_url", pageURL,
		"strategy", loc.Strategy,
		"has_audio", loc.AudioURL != "",
		"pairing", loc.Pairing,
		"duration_ms", time.Since(start).Milliseconds())
	return loc, nil
}

// cascade runs the strategies in order. Strategy errors are logged and the
// next strategy is tried; only cancellation stops the cascade.
func (l *Locator) cascade(ctx context.Context, pc *PageContext) (*Hit, string, error) {
	for _, s := range l.strategies {
		hit, err := s.Attempt(ctx, pc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, "", ctxErr
			}
			l.logger.Warn("strategy failed", "strategy", s.Name(), "error", err)
			continue
		}
		if hit == nil || !media.IsDirect(hit.VideoURL) {
			l.logger.Debug("strategy found nothing", "strategy", s.Name())
			continue
		}
		return hit, s.Name(), nil
	}
	return nil, "", nil
}

// resolve picks the audio track and normalizes both URLs.
func (l *Locator) resolve(pc *PageContext, hit *Hit, strategy string) *Location {
	loc := &Location{
		VideoURL: media.Normalize(hit.VideoURL),
		Strategy: strategy,
		Pairing:  media.PairingNone,
	}

	video := media.Classify(hit.VideoURL, l.profile)
	if hit.Video != nil {
		video = *hit.Video
	}
	loc.VideoCodec = video.Codec()

	if hit.AudioURL != "" {
		loc.AudioURL = media.Normalize(hit.AudioURL)
		loc.Pairing = media.PairingEmbedded
	} else {
		audio, pairing := media.PairAudio(video, directOnly(pc.AudioCandidates()))
		loc.Pairing = pairing
		if pairing != media.PairingNone {
			loc.AudioURL = media.Normalize(audio.URL)
		}
		if pairing == media.PairingFallback {
			l.logger.Warn("low-confidence audio pairing",
				"pairing", pairing,
				"video_asset", video.AssetID,
				"audio_asset", audio.AssetID)
		}
	}

	loc.Candidates = dedupe(append(pc.ObservedURLs(), hit.Candidates...))
	return loc
}

// title is best effort: failures only cost the title.
func (l *Locator) title(ctx context.Context, page browser.Page) string {
	var probe titleProbe
	if err := page.Evaluate(ctx, titleProbeScript(l.profile.TitleMaxAncestors), &probe); err != nil {
		if !errors.Is(err, context.Canceled) {
			l.logger.Debug("title probe failed", "error", err)
		}
		return ""
	}
	return pickTitle(l.profile, probe)
}

func directOnly(in []media.StreamCandidate) []media.StreamCandidate {
	out := make([]media.StreamCandidate, 0, len(in))
	for _, c := range in {
		if media.IsDirect(c.URL) {
			out = append(out, c)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
