package service

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/raphaelgruber/fbparty-go/internal/media"
	"github.com/raphaelgruber/fbparty-go/internal/models"
	"github.com/raphaelgruber/fbparty-go/internal/scraper"
)

// fakeLocator answers Locate with a fixed result or runs fn.
type fakeLocator struct {
	loc   *scraper.Location
	err   error
	fn    func() (*scraper.Location, error)
	calls int
}

func (l *fakeLocator) Locate(ctx context.Context, pageURL string) (*scraper.Location, error) {
	l.calls++
	if l.fn != nil {
		return l.fn()
	}
	return l.loc, l.err
}

// fakeDownloader writes the URL into dest. For kinds in failFor it leaves a
// partial file behind and fails.
type fakeDownloader struct {
	mu      sync.Mutex
	failFor map[media.Kind]error
	urls    []string
}

func (d *fakeDownloader) Download(ctx context.Context, rawURL, dest string, kind media.Kind) (int64, error) {
	d.mu.Lock()
	d.urls = append(d.urls, rawURL)
	err := d.failFor[kind]
	d.mu.Unlock()
	if err != nil {
		_ = os.WriteFile(dest, []byte("partial"), 0o644)
		return 0, err
	}
	if err := os.WriteFile(dest, []byte(rawURL), 0o644); err != nil {
		return 0, err
	}
	return int64(len(rawURL)), nil
}

type fakeMuxer struct {
	err    error
	calls  int
	codecs []string
}

func (m *fakeMuxer) Merge(ctx context.Context, videoPath, audioPath, outPath, videoCodec string) error {
	m.calls++
	m.codecs = append(m.codecs, videoCodec)
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(outPath, []byte("muxed"), 0o644)
}

type fakeThumbnailer struct {
	err error
	src string
}

func (f *fakeThumbnailer) Capture(ctx context.Context, videoPath, outPath string) error {
	f.src = videoPath
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("jpeg"), 0o644)
}

type fakeNotifier struct {
	mu     sync.Mutex
	videos []models.Video
}

func (n *fakeNotifier) VideoStatus(v *models.Video) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.videos = append(n.videos, *v)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.videos)
}

type fakeInvalidator struct {
	calls int
	err   error
}

func (f *fakeInvalidator) MarkInvalid(ctx context.Context) error {
	f.calls++
	return f.err
}

var errBoom = errors.New("boom")
