package redirector

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/facebookgo/atomicfile"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DomainCache keeps the hostname list of the environment in a JSON file and
// refetches it once the file is older than the TTL.
//
// Concurrent refreshes from several processes are harmless: each one writes
// a complete file through a rename, and the last write wins.
type DomainCache struct {
	path    string
	ttl     time.Duration
	fetcher Fetcher
	memo    *lru.Cache
	metrics *Metrics
	log     zerolog.Logger
	now     func() time.Time

	// mu serializes refreshes of an expired file. retryAt holds off the
	// next attempt after a failed one; retry grows the wait on repeated
	// failures.
	mu      sync.Mutex
	retry   *backoff.ExponentialBackOff
	retryAt time.Time
}

type CacheOpts struct {
	TTL      time.Duration
	MemoSize int
	Metrics  *Metrics
	Logger   zerolog.Logger

	// RetryInterval is the first wait after a failed refresh of an
	// expired file. Later failures double it, up to MaxRetryInterval.
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

const (
	defaultRetryInterval    = time.Minute
	defaultMaxRetryInterval = time.Hour
)

// memoEntry is a decoded cache file, valid for as long as the file keeps
// the same modification time and size.
type memoEntry struct {
	modTime time.Time
	size    int64
	domains []Domain
}

func NewDomainCache(path string, fetcher Fetcher, opts CacheOpts) (*DomainCache, error) {
	if opts.TTL <= 0 {
		opts.TTL = fallbackFileTTL
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = 1
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.MaxRetryInterval < opts.RetryInterval {
		opts.MaxRetryInterval = defaultMaxRetryInterval
		if opts.MaxRetryInterval < opts.RetryInterval {
			opts.MaxRetryInterval = opts.RetryInterval
		}
	}
	memo, err := lru.New(opts.MemoSize)
	if err != nil {
		return nil, err
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = opts.RetryInterval
	retry.MaxInterval = opts.MaxRetryInterval
	retry.MaxElapsedTime = 0
	retry.Reset()

	return &DomainCache{
		path:    path,
		ttl:     opts.TTL,
		fetcher: fetcher,
		memo:    memo,
		metrics: opts.Metrics,
		log:     opts.Logger,
		now:     time.Now,
		retry:   retry,
	}, nil
}

func (dc *DomainCache) Path() string {
	return dc.path
}

func (dc *DomainCache) TTL() time.Duration {
	return dc.ttl
}

// List returns the cached hostname list, refreshing the file first when it
// is missing or expired. A failed refresh of an expired file keeps serving
// the previous list, and no new attempt is made until the retry wait has
// passed.
func (dc *DomainCache) List(ctx context.Context) ([]Domain, error) {
	info, err := os.Stat(dc.path)
	switch {
	case os.IsNotExist(err):
		if _, err := dc.Refresh(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, errors.Wrapf(err, "failed to stat domain file %s", dc.path)
	case dc.expired(info):
		dc.refreshExpired(ctx)
	}
	return dc.read()
}

func (dc *DomainCache) expired(info os.FileInfo) bool {
	return dc.now().Sub(info.ModTime()) > dc.ttl
}

func (dc *DomainCache) refreshExpired(ctx context.Context) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	// Another request may have refreshed the file while we waited.
	info, err := os.Stat(dc.path)
	if err == nil && !dc.expired(info) {
		return
	}
	now := dc.now()
	if now.Before(dc.retryAt) {
		return
	}

	if _, err := dc.Refresh(ctx); err != nil {
		wait := dc.retry.NextBackOff()
		dc.retryAt = now.Add(wait)
		ev := dc.log.Warn().
			Err(err).
			Str("path", dc.path).
			Dur("retry_in", wait)
		if info != nil {
			ev = ev.Time("modified", info.ModTime())
		}
		ev.Msg("failed to refresh domain file, using stale list")
		return
	}
	dc.retry.Reset()
	dc.retryAt = time.Time{}
}

// Refresh fetches the hostname list and overwrites the cache file with it.
// Nothing is written if the fetch fails.
func (dc *DomainCache) Refresh(ctx context.Context) ([]Domain, error) {
	if err := dc.ensureDir(); err != nil {
		return nil, err
	}

	domains, err := dc.fetcher.Fetch(ctx)
	if err != nil {
		dc.metrics.FetchFailed()
		return nil, err
	}

	if err := dc.write(domains); err != nil {
		return nil, err
	}
	dc.memo.Remove(dc.path)
	dc.metrics.CacheRefreshed()

	dc.log.Info().
		Str("path", dc.path).
		Int("domains", len(domains)).
		Msg("refreshed domain file")
	return domains, nil
}

// Age is the time elapsed since the cache file was last written.
func (dc *DomainCache) Age() (time.Duration, error) {
	info, err := os.Stat(dc.path)
	if err != nil {
		return 0, err
	}
	return dc.now().Sub(info.ModTime()), nil
}

// ensureDir creates the private directory. Only the last path element is
// created; the file mount itself must exist.
func (dc *DomainCache) ensureDir() error {
	dir := filepath.Dir(dc.path)
	if err := os.Mkdir(dir, 0o755); err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}
	return nil
}

func (dc *DomainCache) write(domains []Domain) error {
	buf, err := json.Marshal(domains)
	if err != nil {
		return errors.Wrap(err, "failed to encode domains")
	}

	f, err := atomicfile.New(dc.path, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open domain file %s", dc.path)
	}
	if _, err := f.Write(buf); err != nil {
		f.Abort()
		return errors.Wrapf(err, "failed to write domain file %s", dc.path)
	}
	return f.Close()
}

func (dc *DomainCache) read() ([]Domain, error) {
	info, err := os.Stat(dc.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat domain file %s", dc.path)
	}
	if v, ok := dc.memo.Get(dc.path); ok {
		e := v.(memoEntry)
		if e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
			return e.domains, nil
		}
	}

	raw, err := os.ReadFile(dc.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read domain file %s", dc.path)
	}
	var domains []Domain
	if err := json.Unmarshal(raw, &domains); err != nil {
		return nil, errors.Wrapf(err, "failed to decode domain file %s", dc.path)
	}

	dc.memo.Add(dc.path, memoEntry{
		modTime: info.ModTime(),
		size:    info.Size(),
		domains: domains,
	})
	return domains, nil
}
