package redirector

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const adminPrefix = "/_redirector"

type AdminClaims struct {
	Environment string `json:"environment,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and checks admin bearer tokens. A token only opens the
// environment it was minted for.
type TokenIssuer struct {
	secret      []byte
	environment string
}

func NewTokenIssuer(secret, environment string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), environment: environment}
}

func (ti *TokenIssuer) Generate(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Environment: ti.environment,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

func (ti *TokenIssuer) Validate(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Environment != ti.environment {
		return nil, errors.Errorf("token issued for environment %q, not %q", claims.Environment, ti.environment)
	}
	return claims, nil
}

// Require rejects requests without a valid bearer token.
func (ti *TokenIssuer) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(auth, "Bearer ")
		if auth == "" || tokenString == auth {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		claims, err := ti.Validate(tokenString)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(withAdminClaims(r.Context(), claims)))
	}
}

type contextKey string

const adminContextKey contextKey = "admin"

func withAdminClaims(ctx context.Context, claims *AdminClaims) context.Context {
	return context.WithValue(ctx, adminContextKey, claims)
}

func AdminFromContext(ctx context.Context) *AdminClaims {
	if claims, ok := ctx.Value(adminContextKey).(*AdminClaims); ok {
		return claims
	}
	return nil
}

// StatusResponse is returned by the status and refresh endpoints.
type StatusResponse struct {
	Environment       string   `json:"environment"`
	EnvironmentDomain string   `json:"environment_domain"`
	PrimaryDomain     string   `json:"primary_domain"`
	CacheAgeSeconds   int64    `json:"cache_age_seconds"`
	CacheTTLSeconds   int64    `json:"cache_ttl_seconds"`
	Domains           []Domain `json:"domains,omitempty"`
}

// Admin serves the operator endpoints under /_redirector.
type Admin struct {
	issuer      *TokenIssuer
	cache       *DomainCache
	resolver    *Resolver
	environment string
	log         zerolog.Logger
}

func NewAdmin(issuer *TokenIssuer, cache *DomainCache, resolver *Resolver, environment string, log zerolog.Logger) *Admin {
	return &Admin{
		issuer:      issuer,
		cache:       cache,
		resolver:    resolver,
		environment: environment,
		log:         log,
	}
}

func (a *Admin) Register(mux *http.ServeMux) {
	mux.HandleFunc(adminPrefix+"/status", a.issuer.Require(a.handleStatus))
	mux.HandleFunc(adminPrefix+"/refresh", a.issuer.Require(a.handleRefresh))
}

func (a *Admin) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	primary, err := a.resolver.PrimaryDomain(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("status: failed to resolve primary domain")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	a.writeStatus(w, primary, nil)
}

func (a *Admin) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	domains, err := a.cache.Refresh(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("refresh: failed to fetch hostnames")
		http.Error(w, "Failed to refresh domains", http.StatusBadGateway)
		return
	}
	if claims := AdminFromContext(r.Context()); claims != nil {
		a.log.Info().Str("subject", claims.Subject).Msg("domain file refreshed on request")
	}
	a.writeStatus(w, PrimaryDomain(domains, a.resolver.EnvironmentDomain()), domains)
}

func (a *Admin) writeStatus(w http.ResponseWriter, primary string, domains []Domain) {
	resp := StatusResponse{
		Environment:       a.environment,
		EnvironmentDomain: a.resolver.EnvironmentDomain(),
		PrimaryDomain:     primary,
		CacheTTLSeconds:   int64(a.cache.TTL().Seconds()),
		Domains:           domains,
	}
	if age, err := a.cache.Age(); err == nil {
		resp.CacheAgeSeconds = int64(age.Seconds())
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.log.Error().Err(err).Msg("failed to encode status")
	}
}
