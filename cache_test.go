package redirector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	domains []Domain
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]Domain, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.domains, nil
}

var testDomains = []Domain{
	{Key: envDomain, Type: "platform"},
	{Key: "www.example.com", Type: DomainTypeCustom, Primary: true},
}

func newTestCache(t *testing.T, f Fetcher, ttl time.Duration) *DomainCache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "private", domainFileName)
	dc, err := NewDomainCache(path, f, CacheOpts{TTL: ttl, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return dc
}

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestDomainCacheMissingFile(t *testing.T) {
	f := &fakeFetcher{domains: testDomains}
	dc := newTestCache(t, f, 24*time.Hour)

	domains, err := dc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testDomains, domains)
	assert.Equal(t, 1, f.calls)

	raw, err := os.ReadFile(dc.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"key":"live-mysite.pantheonsite.io","type":"platform"},{"key":"www.example.com","type":"custom","primary":true}]`, string(raw))
}

func TestDomainCacheWithinTTL(t *testing.T) {
	f := &fakeFetcher{domains: testDomains}
	dc := newTestCache(t, f, 24*time.Hour)

	_, err := dc.List(context.Background())
	require.NoError(t, err)
	age(t, dc.Path(), time.Hour)

	for i := 0; i < 3; i++ {
		_, err := dc.List(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.calls)
}

func TestDomainCacheExpired(t *testing.T) {
	f := &fakeFetcher{domains: testDomains}
	dc := newTestCache(t, f, 24*time.Hour)

	_, err := dc.List(context.Background())
	require.NoError(t, err)
	age(t, dc.Path(), 48*time.Hour)

	updated := []Domain{
		{Key: envDomain, Type: "platform"},
		{Key: "example.org", Type: DomainTypeCustom},
	}
	f.domains = updated

	domains, err := dc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, updated, domains)
	assert.Equal(t, 2, f.calls)

	_, err = dc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

func TestDomainCacheDefaultTTL(t *testing.T) {
	dc := newTestCache(t, &fakeFetcher{}, 0)
	assert.Equal(t, 2629746*time.Second, dc.TTL())

	conf := DefaultConfig()
	conf.FileAge = 0
	assert.Equal(t, 2629746*time.Second, conf.FileTTL())
	conf.FileAge = 14
	assert.Equal(t, 14*24*time.Hour, conf.FileTTL())
}

func TestDomainCacheMalformedFile(t *testing.T) {
	f := &fakeFetcher{domains: testDomains}
	dc := newTestCache(t, f, 24*time.Hour)

	require.NoError(t, os.MkdirAll(filepath.Dir(dc.Path()), 0o755))
	require.NoError(t, os.WriteFile(dc.Path(), []byte("{not json"), 0o644))

	_, err := dc.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode domain file")
	assert.Equal(t, 0, f.calls)
}

func TestDomainCacheFetchFailureKeepsStaleFile(t *testing.T) {
	f := &fakeFetcher{domains: testDomains}
	dc := newTestCache(t, f, 24*time.Hour)

	_, err := dc.List(context.Background())
	require.NoError(t, err)
	age(t, dc.Path(), 48*time.Hour)
	before, err := os.Stat(dc.Path())
	require.NoError(t, err)

	f.err = errors.New("connection refused")
	domains, err := dc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testDomains, domains)

	after, err := os.Stat(dc.Path())
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestDomainCacheHoldsOffAfterFailedRefresh(t *testing.T) {
	f := &fakeFetcher{domains: testDomains}
	dc := newTestCache(t, f, 24*time.Hour)

	_, err := dc.List(context.Background())
	require.NoError(t, err)
	age(t, dc.Path(), 48*time.Hour)
	before, err := os.Stat(dc.Path())
	require.NoError(t, err)

	f.err = errors.New("connection refused")
	for i := 0; i < 5; i++ {
		domains, err := dc.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, testDomains, domains)
	}
	assert.Equal(t, 2, f.calls)

	after, err := os.Stat(dc.Path())
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())

	// Past the hold-off the next request tries again.
	start := time.Now()
	dc.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = dc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, f.calls)
	_, err = dc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, f.calls)

	updated := []Domain{
		{Key: envDomain, Type: "platform"},
		{Key: "example.org", Type: DomainTypeCustom},
	}
	f.err = nil
	f.domains = updated
	dc.now = func() time.Time { return start.Add(4 * time.Hour) }
	domains, err := dc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, updated, domains)
	assert.Equal(t, 4, f.calls)
}

func TestDomainCacheRetryInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private", domainFileName)
	f := &fakeFetcher{domains: testDomains}
	dc, err := NewDomainCache(path, f, CacheOpts{
		TTL:           24 * time.Hour,
		RetryInterval: 10 * time.Second,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = dc.List(context.Background())
	require.NoError(t, err)
	age(t, path, 48*time.Hour)

	f.err = errors.New("connection refused")
	start := time.Now()
	dc.now = func() time.Time { return start }
	_, err = dc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)

	// The first wait is the interval with up to half of it as jitter.
	dc.now = func() time.Time { return start.Add(4 * time.Second) }
	_, err = dc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)

	dc.now = func() time.Time { return start.Add(16 * time.Second) }
	_, err = dc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, f.calls)
}

func TestDomainCacheFetchFailureWithoutFile(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	dc := newTestCache(t, f, 24*time.Hour)

	_, err := dc.List(context.Background())
	require.Error(t, err)
	_, statErr := os.Stat(dc.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestDomainCacheMissingFileMount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "private", domainFileName)
	dc, err := NewDomainCache(path, &fakeFetcher{domains: testDomains}, CacheOpts{Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = dc.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create directory")
}

func TestDomainCacheAge(t *testing.T) {
	dc := newTestCache(t, &fakeFetcher{domains: testDomains}, 24*time.Hour)
	_, err := dc.Age()
	require.Error(t, err)

	_, err = dc.Refresh(context.Background())
	require.NoError(t, err)
	age(t, dc.Path(), 2*time.Hour)

	a, err := dc.Age()
	require.NoError(t, err)
	assert.InDelta(t, (2 * time.Hour).Seconds(), a.Seconds(), 5)
}
