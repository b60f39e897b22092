package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/browser"
	"github.com/raphaelgruber/fbparty-go/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithClosesPage(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		l := &browsertest.Launcher{}
		err := browser.With(ctx, l, browser.Options{}, func(p browser.Page) error {
			return p.Navigate(ctx, "https://example.com", time.Second)
		})
		require.NoError(t, err)
		assert.Equal(t, 1, l.Page.Closed())
		assert.Equal(t, []string{"https://example.com"}, l.Page.Navigated())
	})

	t.Run("error", func(t *testing.T) {
		l := &browsertest.Launcher{}
		boom := errors.New("boom")
		err := browser.With(ctx, l, browser.Options{}, func(browser.Page) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, l.Page.Closed())
	})

	t.Run("panic", func(t *testing.T) {
		l := &browsertest.Launcher{}
		assert.Panics(t, func() {
			_ = browser.With(ctx, l, browser.Options{}, func(browser.Page) error { panic("boom") })
		})
		assert.Equal(t, 1, l.Page.Closed())
	})

	t.Run("open fails", func(t *testing.T) {
		l := &browsertest.Launcher{Err: errors.New("no chrome")}
		called := false
		err := browser.With(ctx, l, browser.Options{}, func(browser.Page) error {
			called = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, called)
	})
}

func TestSleep(t *testing.T) {
	require.NoError(t, browser.Sleep(context.Background(), time.Millisecond))
	require.NoError(t, browser.Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, browser.Sleep(ctx, time.Hour), context.Canceled)
}

func TestThrottle(t *testing.T) {
	inner := &browsertest.Launcher{}

	t.Run("disabled", func(t *testing.T) {
		assert.Same(t, inner, browser.Throttle(inner, 0, 1))
	})

	t.Run("spaces launches", func(t *testing.T) {
		l := browser.Throttle(inner, 40*time.Millisecond, 1)
		start := time.Now()
		for i := 0; i < 3; i++ {
			_, err := l.Open(context.Background(), browser.Options{})
			require.NoError(t, err)
		}
		assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	})

	t.Run("cancelled wait", func(t *testing.T) {
		l := browser.Throttle(&browsertest.Launcher{}, time.Hour, 1)
		_, err := l.Open(context.Background(), browser.Options{})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = l.Open(ctx, browser.Options{})
		assert.Error(t, err)
	})
}
