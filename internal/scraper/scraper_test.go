package scraper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/browser/browsertest"
	"github.com/raphaelgruber/fbparty-go/internal/media"
	"github.com/raphaelgruber/fbparty-go/internal/metrics"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	"github.com/raphaelgruber/fbparty-go/internal/platform"
	"github.com/raphaelgruber/fbparty-go/internal/vault"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type fakeStore struct {
	mu          sync.Mutex
	record      *models.CookieRecord
	err         error
	invalidated []string
}

func (s *fakeStore) LatestCookie(ctx context.Context) (*models.CookieRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record, s.err
}

func (s *fakeStore) MarkCookieInvalid(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, id)
	return nil
}

func testProfile(t *testing.T) *platform.Profile {
	t.Helper()
	p, err := platform.Default()
	require.NoError(t, err)
	return p
}

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(testSecret)
	require.NoError(t, err)
	return v
}

// storeWith returns a store holding cookies encrypted with testSecret.
func storeWith(t *testing.T, cookies []models.Cookie) *fakeStore {
	t.Helper()
	data, err := json.Marshal(cookies)
	require.NoError(t, err)
	enc, err := testVault(t).Encrypt(data)
	require.NoError(t, err)
	return &fakeStore{record: &models.CookieRecord{
		ID:        surrealmodels.RecordID{Table: "cookie", ID: "c1"},
		Encrypted: enc,
		SavedAt:   time.Now(),
		Valid:     true,
	}}
}

var sessionCookies = []models.Cookie{
	{Name: "c_user", Value: "100", Domain: ".facebook.com", Path: "/"},
	{Name: "xs", Value: "secret", Domain: ".facebook.com", Path: "/"},
	{Name: "tracker", Value: "x", Domain: ".ads.example", Path: "/"},
}

func cdnURL(path, descriptor, extra string) string {
	efg := url.QueryEscape(base64.StdEncoding.EncodeToString([]byte(descriptor)))
	u := "https://video.fxx1-1.fna.fbcdn.net" + path + "?efg=" + efg
	if extra != "" {
		u += "&" + extra
	}
	return u
}

func newTestLocator(t *testing.T, store *fakeStore, l *browsertest.Launcher) *Locator {
	t.Helper()
	p := testProfile(t)
	sessions := NewSessions(store, testVault(t), p, nil)
	return NewLocator(sessions, l, p, LocatorOptions{NavTimeout: time.Second}, metrics.NewCollector(), nil)
}

func TestSessionsLoad(t *testing.T) {
	ctx := context.Background()
	p := testProfile(t)

	t.Run("filters foreign domains", func(t *testing.T) {
		s := NewSessions(storeWith(t, sessionCookies), testVault(t), p, nil)
		cookies, err := s.Load(ctx)
		require.NoError(t, err)
		require.Len(t, cookies, 2)
		assert.Equal(t, "c_user", cookies[0].Name)
	})

	t.Run("no record", func(t *testing.T) {
		s := NewSessions(&fakeStore{}, testVault(t), p, nil)
		_, err := s.Load(ctx)
		assert.ErrorIs(t, err, ErrNoCredential)
	})

	t.Run("undecryptable", func(t *testing.T) {
		store := &fakeStore{record: &models.CookieRecord{Encrypted: "bm90IGEgcGF5bG9hZA=="}}
		s := NewSessions(store, testVault(t), p, nil)
		_, err := s.Load(ctx)
		assert.ErrorIs(t, err, ErrNoCredential)
	})

	t.Run("only foreign cookies", func(t *testing.T) {
		s := NewSessions(storeWith(t, sessionCookies[2:]), testVault(t), p, nil)
		_, err := s.Load(ctx)
		assert.ErrorIs(t, err, ErrNoCredential)
	})

	t.Run("store error", func(t *testing.T) {
		s := NewSessions(&fakeStore{err: errors.New("db down")}, testVault(t), p, nil)
		_, err := s.Load(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoCredential)
	})
}

func TestSessionsMarkInvalid(t *testing.T) {
	store := storeWith(t, sessionCookies)
	s := NewSessions(store, testVault(t), testProfile(t), nil)

	require.NoError(t, s.MarkInvalid(context.Background()))
	assert.Equal(t, []string{"c1"}, store.invalidated)

	empty := NewSessions(&fakeStore{}, testVault(t), testProfile(t), nil)
	assert.ErrorIs(t, empty.MarkInvalid(context.Background()), ErrNoCredential)
}

func TestLocateWithoutCredential(t *testing.T) {
	l := &browsertest.Launcher{}
	loc, err := newTestLocator(t, &fakeStore{}, l).Locate(context.Background(), "https://www.facebook.com/watch/?v=1")

	assert.Nil(t, loc)
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, "No cookie stored", err.Error())
	assert.Zero(t, l.Opens())
}

func TestLocateNetworkStrategyPairsAudio(t *testing.T) {
	v1 := cdnURL("/o1/v/t2/f2/m69/v1.mp4", `{"vencode_tag":"dash_h264_720p","xpv_asset_id":"X","video_id":"X"}`, "bytestart=0&byteend=999")
	a1 := cdnURL("/o1/v/t2/f2/m69/a1.mp4", `{"vencode_tag":"dash_heaac_audio","xpv_asset_id":"X","video_id":"X"}`, "bytestart=0&byteend=10")
	a2 := cdnURL("/o1/v/t2/f2/m69/a2.mp4", `{"vencode_tag":"dash_heaac_audio","xpv_asset_id":"Y","video_id":"Y"}`, "")

	page := &browsertest.Page{
		Observed: []string{
			"https://www.facebook.com/ajax/bz",
			a2, v1, a1, v1,
		},
	}
	l := &browsertest.Launcher{Page: page}

	loc, err := newTestLocator(t, storeWith(t, sessionCookies), l).Locate(context.Background(), "https://www.facebook.com/watch/?v=1")
	require.NoError(t, err)

	assert.Equal(t, "network", loc.Strategy)
	assert.Equal(t, media.Normalize(v1), loc.VideoURL)
	assert.Equal(t, media.Normalize(a1), loc.AudioURL)
	assert.Equal(t, media.PairingMatched, loc.Pairing)
	assert.Equal(t, media.CodecH264, loc.VideoCodec)
	assert.NotContains(t, loc.VideoURL, "bytestart")
	assert.Equal(t, []string{a2, v1, a1}, loc.Candidates)

	assert.Equal(t, 1, page.Closed())
	opts := l.Options()
	require.Len(t, opts, 1)
	assert.True(t, opts[0].ObserveRequests)
	assert.Len(t, opts[0].Cookies, 2)
}

func TestLocateFailures(t *testing.T) {
	tests := []struct {
		name     string
		launcher *browsertest.Launcher
		check    func(t *testing.T, err error)
	}{
		{
			name:     "launch",
			launcher: &browsertest.Launcher{Err: errors.New("chrome not found")},
			check: func(t *testing.T, err error) {
				var le *LaunchError
				assert.ErrorAs(t, err, &le)
			},
		},
		{
			name:     "navigation timeout",
			launcher: &browsertest.Launcher{Page: &browsertest.Page{NavigateErr: context.DeadlineExceeded}},
			check: func(t *testing.T, err error) {
				var ne *NavigationError
				require.ErrorAs(t, err, &ne)
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			},
		},
		{
			name:     "login wall",
			launcher: &browsertest.Launcher{Page: &browsertest.Page{Landed: "https://www.facebook.com/login/?next=x"}},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNotAuthenticated)
			},
		},
		{
			name:     "nothing found",
			launcher: &browsertest.Launcher{Page: &browsertest.Page{Document: "<html><body>nothing</body></html>"}},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoMediaFound)
				assert.Equal(t, "No video URL found", err.Error())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := newTestLocator(t, storeWith(t, sessionCookies), tt.launcher).Locate(context.Background(), "https://www.facebook.com/watch/?v=1")
			assert.Nil(t, loc)
			require.Error(t, err)
			tt.check(t, err)
			if tt.launcher.Page != nil {
				assert.Equal(t, 1, tt.launcher.Page.Closed())
			}
		})
	}
}

func TestDOMStrategy(t *testing.T) {
	src := "https://video.xx.fbcdn.net/v/t42/clip_n.mp4?bytestart=0&byteend=5&oh=abc"
	page := &browsertest.Page{
		Eval: func(expr string) (any, error) {
			switch expr {
			case playVideoScript:
				return true, nil
			case videoSourcesScript:
				return []string{"blob:https://www.facebook.com/1234", "https://x.fbcdn.net/live.m3u8", src}, nil
			}
			return nil, nil
		},
	}

	loc, err := newTestLocator(t, storeWith(t, sessionCookies), &browsertest.Launcher{Page: page}).Locate(context.Background(), "https://fb.watch/x")
	require.NoError(t, err)
	assert.Equal(t, "dom", loc.Strategy)
	assert.Equal(t, "https://video.xx.fbcdn.net/v/t42/clip_n.mp4?oh=abc", loc.VideoURL)
	assert.Empty(t, loc.AudioURL)
	assert.Equal(t, media.PairingNone, loc.Pairing)
}

func TestDOMStrategyRejectsBlobOnly(t *testing.T) {
	page := &browsertest.Page{
		Eval: func(expr string) (any, error) {
			switch expr {
			case playVideoScript:
				return true, nil
			case videoSourcesScript:
				return []string{"blob:https://www.facebook.com/1234"}, nil
			}
			return nil, nil
		},
	}
	pc := newPageContext(page, testProfile(t), 0, nil)
	hit, err := domStrategy{}.Attempt(context.Background(), pc)
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestInterceptedStrategyFallsBackWithHeuristicAudio(t *testing.T) {
	video := "https://video.xx.fbcdn.net/v/t42/plain_n.mp4?_nc_cat=1"
	audio := "https://video.xx.fbcdn.net/v/t42/m412/sound_n.mp4?_nc_cat=1"
	page := &browsertest.Page{Observed: []string{audio, video}}

	loc, err := newTestLocator(t, storeWith(t, sessionCookies), &browsertest.Launcher{Page: page}).Locate(context.Background(), "https://fb.watch/x")
	require.NoError(t, err)
	assert.Equal(t, "intercepted", loc.Strategy)
	assert.Equal(t, video, loc.VideoURL)
	assert.Equal(t, audio, loc.AudioURL)
	assert.Equal(t, media.PairingFallback, loc.Pairing)
}

func TestHTMLStrategy(t *testing.T) {
	p := testProfile(t)

	t.Run("cdn regex with embedded audio", func(t *testing.T) {
		page := &browsertest.Page{Document: `<script>{"u":"https:\/\/video.xx.fbcdn.net\/v\/t42\/a_n.mp4?oh=1&amp;bytestart=0","a":"https:\/\/video.xx.fbcdn.net\/v\/t42\/a_n.m4a?oh=2"}</script>`}
		hit, err := htmlStrategy{}.Attempt(context.Background(), newPageContext(page, p, 0, nil))
		require.NoError(t, err)
		require.NotNil(t, hit)
		assert.Equal(t, "https://video.xx.fbcdn.net/v/t42/a_n.mp4?oh=1&bytestart=0", hit.VideoURL)
		assert.Equal(t, "https://video.xx.fbcdn.net/v/t42/a_n.m4a?oh=2", hit.AudioURL)
	})

	t.Run("json keys in priority order", func(t *testing.T) {
		page := &browsertest.Page{Document: `{"sd_src":"https:\/\/video.xx.fbcdn.net\/v\/stream?q=sd","playable_url":"https:\/\/video.xx.fbcdn.net\/v\/stream?q=hd","audio_stream":"https:\/\/video.xx.fbcdn.net\/v\/audio?q=1"}`}
		hit, err := htmlStrategy{}.Attempt(context.Background(), newPageContext(page, p, 0, nil))
		require.NoError(t, err)
		require.NotNil(t, hit)
		assert.Equal(t, "https://video.xx.fbcdn.net/v/stream?q=hd", hit.VideoURL)
		assert.Equal(t, "https://video.xx.fbcdn.net/v/audio?q=1", hit.AudioURL)
	})

	t.Run("percent escaped key", func(t *testing.T) {
		page := &browsertest.Page{Document: `{"video_url%3A":"https:\/\/video.xx.fbcdn.net\/v\/stream?q=esc"}`}
		hit, err := htmlStrategy{}.Attempt(context.Background(), newPageContext(page, p, 0, nil))
		require.NoError(t, err)
		require.NotNil(t, hit)
		assert.Equal(t, "https://video.xx.fbcdn.net/v/stream?q=esc", hit.VideoURL)
	})

	t.Run("nothing", func(t *testing.T) {
		page := &browsertest.Page{Document: `<video src="blob:https://www.facebook.com/1"></video>`}
		hit, err := htmlStrategy{}.Attempt(context.Background(), newPageContext(page, p, 0, nil))
		require.NoError(t, err)
		assert.Nil(t, hit)
	})
}

func TestGlobalsStrategyEndToEnd(t *testing.T) {
	p := testProfile(t)
	want := "https://video.xx.fbcdn.net/v/t42/global_n.mp4?oh=9"
	page := &browsertest.Page{
		Document: "<html></html>",
		Eval: func(expr string) (any, error) {
			if expr == globalsScript(p.GlobalObjects) {
				return `{"require":[["VideoConfig",{"src":"` + want + `"}]]}`, nil
			}
			if strings.Contains(expr, "og:title") {
				return map[string]any{"levels": [][]string{{"Like", "A very long title for this clip"}}}, nil
			}
			return nil, nil
		},
	}

	loc, err := newTestLocator(t, storeWith(t, sessionCookies), &browsertest.Launcher{Page: page}).Locate(context.Background(), "https://fb.watch/x")
	require.NoError(t, err)
	assert.Equal(t, "globals", loc.Strategy)
	assert.Equal(t, want, loc.VideoURL)
	assert.Equal(t, "A very long title for this clip", loc.Title)
}

func TestLocateRecordsMetrics(t *testing.T) {
	p := testProfile(t)
	mc := metrics.NewCollector()
	loc := NewLocator(NewSessions(&fakeStore{}, testVault(t), p, nil), &browsertest.Launcher{}, p, LocatorOptions{}, mc, nil)

	_, err := loc.Locate(context.Background(), "https://fb.watch/x")
	require.Error(t, err)
	snap := mc.Snapshot()
	require.NotNil(t, snap.Locate)
	assert.Equal(t, int64(1), snap.Locate.Failures)
}

func TestPickTitle(t *testing.T) {
	p := testProfile(t)

	tests := []struct {
		name  string
		probe titleProbe
		want  string
	}{
		{
			name: "first plausible line near the player",
			probe: titleProbe{Levels: [][]string{
				{"0:01 / 12:34", "Like"},
				{"1.2K views", "Grandma bakes the perfect apple pie", "Share"},
			}},
			want: "Grandma bakes the perfect apple pie",
		},
		{
			name:  "skips short lines",
			probe: titleProbe{Levels: [][]string{{"short", "Comment"}}, OG: "Open graph title | Facebook"},
			want:  "Open graph title",
		},
		{
			name:  "document title fallback",
			probe: titleProbe{Doc: "Document title | Facebook"},
			want:  "Document title",
		},
		{
			name:  "nothing",
			probe: titleProbe{},
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickTitle(p, tt.probe))
		})
	}
}

func TestValidator(t *testing.T) {
	p := testProfile(t)

	evalLoggedIn := func(v bool) func(string) (any, error) {
		return func(expr string) (any, error) {
			if strings.Contains(expr, "querySelector(s)") {
				return v, nil
			}
			return nil, nil
		}
	}

	tests := []struct {
		name      string
		store     *fakeStore
		launcher  *browsertest.Launcher
		want      Validation
		wantOpens int
	}{
		{
			name:      "no cookie",
			store:     &fakeStore{},
			launcher:  &browsertest.Launcher{},
			want:      Validation{Reason: ReasonNoCookie},
			wantOpens: 0,
		},
		{
			name:      "logged in",
			store:     storeWith(t, sessionCookies),
			launcher:  &browsertest.Launcher{Page: &browsertest.Page{Eval: evalLoggedIn(true)}},
			want:      Validation{OK: true},
			wantOpens: 1,
		},
		{
			name:      "not logged",
			store:     storeWith(t, sessionCookies),
			launcher:  &browsertest.Launcher{Page: &browsertest.Page{Eval: evalLoggedIn(false)}},
			want:      Validation{Reason: ReasonNotLogged},
			wantOpens: 1,
		},
		{
			name:      "login wall",
			store:     storeWith(t, sessionCookies),
			launcher:  &browsertest.Launcher{Page: &browsertest.Page{Landed: "https://m.facebook.com/login.php", Eval: evalLoggedIn(true)}},
			want:      Validation{Reason: ReasonNotLogged},
			wantOpens: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(NewSessions(tt.store, testVault(t), p, nil), tt.launcher, p, time.Second, metrics.NewCollector(), nil)
			assert.Equal(t, tt.want, v.Validate(context.Background()))
			assert.Equal(t, tt.wantOpens, tt.launcher.Opens())
			if tt.launcher.Page != nil {
				assert.Equal(t, 1, tt.launcher.Page.Closed())
				assert.Equal(t, []string{p.LandingURL}, tt.launcher.Page.Navigated())
			}
			assert.Empty(t, tt.store.invalidated)
		})
	}
}

func TestValidatorErrors(t *testing.T) {
	p := testProfile(t)

	t.Run("navigation", func(t *testing.T) {
		l := &browsertest.Launcher{Page: &browsertest.Page{NavigateErr: context.DeadlineExceeded}}
		v := NewValidator(NewSessions(storeWith(t, sessionCookies), testVault(t), p, nil), l, p, time.Second, nil, nil)
		res := v.Validate(context.Background())
		assert.False(t, res.OK)
		assert.Equal(t, ReasonError, res.Reason)
		assert.Contains(t, res.Detail, "deadline exceeded")
	})

	t.Run("launch", func(t *testing.T) {
		l := &browsertest.Launcher{Err: errors.New("no chrome")}
		v := NewValidator(NewSessions(storeWith(t, sessionCookies), testVault(t), p, nil), l, p, time.Second, nil, nil)
		res := v.Validate(context.Background())
		assert.Equal(t, ReasonError, res.Reason)
		assert.Contains(t, res.Detail, "no chrome")
	})
}
