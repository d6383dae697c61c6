package redirector

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// httpsMarkerHeader is set by the platform edge on requests that arrived
// over HTTPS.
const httpsMarkerHeader = "User-Agent-Https"

// DomainLister is satisfied by *DomainCache.
type DomainLister interface {
	List(ctx context.Context) ([]Domain, error)
}

type Resolver struct {
	domains   DomainLister
	envDomain string
	log       zerolog.Logger
}

func NewResolver(domains DomainLister, envDomain string, log zerolog.Logger) *Resolver {
	return &Resolver{domains: domains, envDomain: envDomain, log: log}
}

func (res *Resolver) EnvironmentDomain() string {
	return res.envDomain
}

// PrimaryDomain resolves the hostname the environment should be served from.
func (res *Resolver) PrimaryDomain(ctx context.Context) (string, error) {
	domains, err := res.domains.List(ctx)
	if err != nil {
		return "", err
	}
	primary := PrimaryDomain(domains, res.envDomain)
	if primary == res.envDomain && len(domains) > 2 {
		res.log.Debug().
			Int("domains", len(domains)).
			Msg("no custom domain marked primary, using environment domain")
	}
	return primary, nil
}

// Decision is the outcome of evaluating one request.
type Decision struct {
	Evaluated bool
	Required  bool
	Reason    string
	Primary   string
	Location  string
}

// Redirector sends requests for the platform domain of an allow-listed
// environment to the primary domain.
type Redirector struct {
	conf        RedirectConfig
	environment string
	resolver    *Resolver
	metrics     *Metrics
	log         zerolog.Logger
	errs        ErrLogger
}

type RedirectorOpts struct {
	Metrics   *Metrics
	Logger    zerolog.Logger
	ErrLogger ErrLogger
}

func NewRedirector(conf RedirectConfig, environment string, resolver *Resolver, opts RedirectorOpts) *Redirector {
	errs := opts.ErrLogger
	if errs == nil {
		errs = NewZeroLogger(opts.Logger)
	}
	return &Redirector{
		conf:        conf,
		environment: environment,
		resolver:    resolver,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		errs:        errs,
	}
}

// Evaluate decides whether r must be redirected. Requests outside the
// allow-listed environments or for a non-platform host are left alone; with
// hsts off, plain http requests for the primary custom domain are therefore
// not upgraded here.
func (rd *Redirector) Evaluate(r *http.Request) (Decision, error) {
	if !rd.conf.RedirectsEnvironment(rd.environment) || !rd.isPlatformHost(r.Host) {
		return Decision{}, nil
	}

	primary, err := rd.resolver.PrimaryDomain(r.Context())
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Evaluated: true, Primary: primary}
	switch {
	case r.Host != primary:
		d.Required, d.Reason = true, ReasonHost
	case !rd.conf.HSTS && r.Header.Get(httpsMarkerHeader) != "ON":
		d.Required, d.Reason = true, ReasonHTTPS
	}
	if d.Required {
		d.Location = "https://" + primary + r.URL.RequestURI()
	}
	return d, nil
}

// Apply evaluates r and writes the redirect response when one is required.
// It returns true when a response was written; the caller must not write
// anything else.
func (rd *Redirector) Apply(w http.ResponseWriter, r *http.Request) (bool, error) {
	d, err := rd.Evaluate(r)
	if err != nil || !d.Required {
		return false, err
	}

	rd.metrics.Redirected(d.Reason)
	rd.log.Info().
		Str("transaction", "redirect").
		Str("host", r.Host).
		Str("reason", d.Reason).
		Str("location", d.Location).
		Msg("redirecting to primary domain")

	seconds := int64(rd.conf.CacheMaxAge().Seconds())
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d, public", seconds))
	http.Redirect(w, r, d.Location, http.StatusMovedPermanently)
	return true, nil
}

// Handler wraps next with the redirect gate.
func (rd *Redirector) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		redirected, err := rd.Apply(w, r)
		if err != nil {
			rd.errs.Log(err, LogOptions{
				Tags: map[string]string{"host": r.Host, "environment": rd.environment},
				Msg:  "failed to resolve primary domain",
			})
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if redirected {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rd *Redirector) isPlatformHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	suffix := strings.ToLower(rd.conf.PlatformSuffix)
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}
