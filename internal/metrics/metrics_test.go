package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserveFetch(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(crawlerFetchTotal.WithLabelValues("metrics-test", OutcomeSaved))
	ObserveFetch("metrics-test", OutcomeSaved, 1024, 20*time.Millisecond)
	ObserveFetch("metrics-test", OutcomeTransport, 0, 0)

	assert.Equal(t, before+1, testutil.ToFloat64(crawlerFetchTotal.WithLabelValues("metrics-test", OutcomeSaved)))
	assert.Equal(t, float64(1024), testutil.ToFloat64(crawlerFetchBytesTotal.WithLabelValues("metrics-test")))
	assert.Equal(t, float64(1), testutil.ToFloat64(crawlerFetchTotal.WithLabelValues("metrics-test", OutcomeTransport)))
}

func TestExtractCountersAndPass(t *testing.T) {
	ObserveLink("metrics-extract", OutcomeInserted)
	ObserveLink("metrics-extract", OutcomeDuplicate)
	ObserveLink("metrics-extract", OutcomeDuplicate)
	ObserveExtract("metrics-extract", OutcomeNoLinks)
	SetFetchPass(3)

	assert.Equal(t, float64(2), testutil.ToFloat64(crawlerLinksTotal.WithLabelValues("metrics-extract", OutcomeDuplicate)))
	assert.Equal(t, float64(1), testutil.ToFloat64(crawlerExtractTotal.WithLabelValues("metrics-extract", OutcomeNoLinks)))
	assert.Equal(t, float64(3), testutil.ToFloat64(crawlerFetchPass))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
