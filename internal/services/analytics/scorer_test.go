package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OVIP/internal/domain/models"
	"OVIP/pkg/config"
)

func testBase(url string) *HTTPServiceBase {
	cfg := config.Default()
	cfg.Models.ServiceURL = url
	cfg.Models.Retries = 3
	cfg.Models.Timeout = time.Second
	cfg.Models.Breaker.ConsecutiveFailures = 2
	cfg.Models.Breaker.OpenTimeout = time.Minute
	b := NewHTTPServiceBase(cfg, nil)
	b.backoff = time.Millisecond
	return b
}

func TestHTTPDirectionScorer(t *testing.T) {
	var got scoreReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/direction", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"probability_up":0.73}`))
	}))
	defer srv.Close()

	s := NewHTTPDirectionScorer(testBase(srv.URL))
	p, err := s.ScoreDirection(context.Background(), map[models.Column]float64{models.ColLVol: 0.3})
	require.NoError(t, err)
	assert.Equal(t, 0.73, p)
	assert.Equal(t, "nprs1", got.Model)
	assert.Equal(t, models.FeatureSetNPRS1.Canonical(), got.Order)
	assert.Equal(t, 0.3, got.Features[models.ColLVol])
}

func TestHTTPDirectionScorer_OutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"probability_up":1.5}`))
	}))
	defer srv.Close()

	_, err := NewHTTPDirectionScorer(testBase(srv.URL)).ScoreDirection(context.Background(), nil)
	assert.Error(t, err)
}

func TestHTTPLevelScorer_RetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/level", r.URL.Path)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"forecast":0.31}`))
	}))
	defer srv.Close()

	v, err := NewHTTPLevelScorer(testBase(srv.URL)).ScoreLevel(context.Background(), map[models.Column]float64{})
	require.NoError(t, err)
	assert.Equal(t, 0.31, v)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestHTTPLevelScorer_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad features", http.StatusBadRequest)
	}))
	defer srv.Close()

	b := testBase(srv.URL)
	_, err := NewHTTPLevelScorer(b).ScoreLevel(context.Background(), nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// client errors do not count against the breaker
	_, err = NewHTTPLevelScorer(b).ScoreLevel(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrServiceUnavailable))
}

func TestHTTPServiceBase_BreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := testBase(srv.URL)
	b.retries = 1
	s := NewHTTPLevelScorer(b)

	_, err := s.ScoreLevel(context.Background(), nil)
	require.Error(t, err)
	_, err = s.ScoreLevel(context.Background(), nil)
	require.Error(t, err)

	_, err = s.ScoreLevel(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrServiceUnavailable))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestHTTPServiceBase_NotConfigured(t *testing.T) {
	_, err := NewHTTPDirectionScorer(testBase("")).ScoreDirection(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrServiceUnavailable))
}
