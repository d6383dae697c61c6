package redirector

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Fetcher retrieves the current hostname list of an environment.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Domain, error)
}

// HostnamesClient talks to the platform hostnames API.
type HostnamesClient struct {
	baseURL     string
	environment string
	c           *http.Client
}

// NewHostnamesClient builds a client for the environment. A nil client
// falls back to http.DefaultClient.
func NewHostnamesClient(baseURL, environment string, client *http.Client) *HostnamesClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HostnamesClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		environment: environment,
		c:           client,
	}
}

// NewAPIHTTPClient returns the http.Client used for the hostnames API.
func NewAPIHTTPClient(timeout time.Duration, certFile, keyFile string) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}
	if certFile == "" {
		return client, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load client certificate")
	}
	client.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
		},
	}
	return client, nil
}

func (hc *HostnamesClient) URL() string {
	return fmt.Sprintf("%s/sites/self/environments/%s/hostnames", hc.baseURL, url.PathEscape(hc.environment))
}

func (hc *HostnamesClient) Fetch(ctx context.Context) ([]Domain, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.URL(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create hostnames request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.c.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to request hostnames")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("hostnames API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var domains []Domain
	if err := json.NewDecoder(resp.Body).Decode(&domains); err != nil {
		return nil, errors.Wrap(err, "failed to decode hostnames")
	}
	if domains == nil {
		return nil, errors.New("hostnames API returned no list")
	}
	return domains, nil
}
