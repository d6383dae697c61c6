package redirector

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Service wires the redirect gate for one environment.
type Service struct {
	Config     *Config
	Platform   Platform
	Cache      *DomainCache
	Resolver   *Resolver
	Redirector *Redirector
	Metrics    *Metrics
	Log        zerolog.Logger
}

// NewService fails when the platform identity needed to build the
// environment domain and the cache path is incomplete.
func NewService(conf *Config, platform Platform, log zerolog.Logger) (*Service, error) {
	if err := platform.Validate(); err != nil {
		return nil, err
	}

	client, err := NewAPIHTTPClient(conf.Timeout(), conf.ClientCert, conf.ClientKey)
	if err != nil {
		return nil, err
	}
	fetcher := NewHostnamesClient(conf.APIURL, platform.Environment, client)

	metrics := NewMetrics()
	cache, err := NewDomainCache(platform.DomainFile(), fetcher, CacheOpts{
		TTL:           conf.FileTTL(),
		MemoSize:      conf.MemoSize,
		Metrics:       metrics,
		Logger:        log,
		RetryInterval: conf.RetryWait(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create domain cache")
	}

	errs := NewZeroLogger(log)
	if conf.SentryDSN != "" {
		sl, err := NewSentryLogger(conf.SentryDSN, map[string]string{
			"environment": platform.Environment,
			"site":        platform.SiteName,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create sentry client")
		}
		errs = MultiErrLogger(errs, sl)
	}

	resolver := NewResolver(cache, platform.EnvironmentDomain(conf.PlatformSuffix), log)
	redirector := NewRedirector(conf.RedirectConfig, platform.Environment, resolver, RedirectorOpts{
		Metrics:   metrics,
		Logger:    log,
		ErrLogger: errs,
	})

	return &Service{
		Config:     conf,
		Platform:   platform,
		Cache:      cache,
		Resolver:   resolver,
		Redirector: redirector,
		Metrics:    metrics,
		Log:        log,
	}, nil
}

// Handler routes the operator endpoints and puts every other request
// through the redirect gate before the site. The operator endpoints,
// metrics included, exist only when an admin secret is configured.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.Config.AdminSecret != "" {
		issuer := NewTokenIssuer(s.Config.AdminSecret, s.Platform.Environment)
		mux.HandleFunc(adminPrefix+"/metrics", issuer.Require(s.Metrics.Handler().ServeHTTP))
		NewAdmin(issuer, s.Cache, s.Resolver, s.Platform.Environment, s.Log).Register(mux)
	}
	mux.Handle("/", s.Redirector.Handler(siteHandler(&s.Config.ServerConfig, s.Log)))
	return mux
}

// Run serves until ctx is done. Off the platform the site is served without
// the redirect gate.
func Run(ctx context.Context, conf *Config, platform Platform, log zerolog.Logger) error {
	var handler http.Handler
	if platform.OnPlatform() {
		s, err := NewService(conf, platform, log)
		if err != nil {
			return err
		}
		handler = s.Handler()
	} else {
		log.Warn().Msg("not running on the platform, redirects are disabled")
		handler = siteHandler(&conf.ServerConfig, log)
	}

	srv := &http.Server{
		Addr:              ":" + conf.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("port", conf.Port).Msg("server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// siteHandler is the application behind the gate: a reverse proxy to the
// upstream, the static site directory, or nothing.
func siteHandler(conf *ServerConfig, log zerolog.Logger) http.Handler {
	if conf.Upstream != "" {
		target, err := url.Parse(conf.Upstream)
		if err == nil && target.Host != "" {
			return httputil.NewSingleHostReverseProxy(target)
		}
		log.Error().Str("upstream", conf.Upstream).Msg("invalid upstream, serving nothing")
	}
	if conf.SiteDir != "" {
		files := http.FileServer(http.Dir(conf.SiteDir))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isAccessible(r.URL.Path) {
				notFound(w, log, "files/directories starting with '_' are not accessible")
				return
			}
			files.ServeHTTP(w, r)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notFound(w, log, r.URL.Path)
	})
}

func isAccessible(p string) bool {
	for _, name := range strings.Split(path.Clean("/"+p), "/") {
		if name != "" && name[0] == '_' {
			return false
		}
	}
	return true
}

func notFound(w http.ResponseWriter, log zerolog.Logger, msg string) {
	http.Error(w, "404 page not found: "+msg, http.StatusNotFound)
	log.Debug().Msg("not found: " + msg)
}
