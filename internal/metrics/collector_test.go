package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorTimings(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpLocate, 100*time.Millisecond)
	c.RecordTiming(OpLocate, 300*time.Millisecond)
	c.RecordResult(OpLocate, 200*time.Millisecond, errors.New("no video"))

	snap := c.Snapshot()
	require.NotNil(t, snap.Locate)
	assert.Equal(t, int64(3), snap.Locate.Count)
	assert.Equal(t, int64(1), snap.Locate.Failures)
	assert.Equal(t, int64(100), snap.Locate.MinTimeMs)
	assert.Equal(t, int64(300), snap.Locate.MaxTimeMs)
	assert.InDelta(t, 200.0, snap.Locate.AvgTimeMs, 0.01)
	assert.Nil(t, snap.Locate.TotalBytes)

	assert.Nil(t, snap.Mux)
	assert.Nil(t, snap.Download)
}

func TestCollectorTransfers(t *testing.T) {
	c := NewCollector()
	c.RecordTransfer(OpDownload, time.Second, 1000)
	c.RecordTransfer(OpDownload, time.Second, 3000)

	snap := c.Snapshot()
	require.NotNil(t, snap.Download)
	require.NotNil(t, snap.Download.TotalBytes)
	assert.Equal(t, int64(4000), *snap.Download.TotalBytes)
	assert.Equal(t, int64(1000), *snap.Download.MinBytes)
	assert.Equal(t, int64(3000), *snap.Download.MaxBytes)
	assert.InDelta(t, 2000.0, *snap.Download.AvgBytes, 0.01)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpDBQuery, time.Millisecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.Snapshot().DBQuery.Count)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTiming(OpMux, time.Second)
		c.RecordTransfer(OpDownload, time.Second, 10)
	})
}

func TestPrometheusExposition(t *testing.T) {
	c := NewCollector()
	c.RecordResult(OpLocate, 2*time.Second, errors.New("no video"))
	c.RecordTransfer(OpDownload, time.Second, 2048)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `fbparty_operation_duration_seconds_count{op="locate",outcome="error"} 1`)
	assert.Contains(t, body, `fbparty_operation_duration_seconds_count{op="download",outcome="ok"} 1`)
	assert.Contains(t, body, "fbparty_download_bytes_total 2048")
	assert.Contains(t, body, "go_goroutines")
}
