package puppetdb

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultMaxResponseSize int64 = 64 * 1024 * 1024 // 64MB

// Config holds the connection settings for a PuppetDB instance.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration

	// TLS client auth. When CACert is set the client speaks HTTPS.
	CACert string
	Cert   string
	Key    string

	// MaxRetries bounds the retry attempts for transient failures.
	MaxRetries uint64
}

// Client queries the PuppetDB v4 API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
}

// NewClient builds a Client from cfg, loading TLS material if configured.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("puppetdb: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	scheme := "http"
	transport := http.DefaultTransport
	if cfg.CACert != "" {
		caPEM, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("puppetdb: read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("puppetdb: no certificates found in %s", cfg.CACert)
		}
		tlsCfg := &tls.Config{RootCAs: pool}
		if cfg.Cert != "" {
			cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
			if err != nil {
				return nil, fmt.Errorf("puppetdb: load client cert: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		transport = &http.Transport{TLSClientConfig: tlsCfg}
		scheme = "https"
	}

	return &Client{
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Nodes returns the nodes matching query (all nodes if query is empty).
func (c *Client) Nodes(ctx context.Context, query string) ([]Node, error) {
	var nodes []Node
	if err := c.get(ctx, "/pdb/query/v4/nodes", query, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Facts returns all facts for one node as a name to value mapping.
func (c *Client) Facts(ctx context.Context, certname string) (map[string]any, error) {
	var facts []Fact
	endpoint := "/pdb/query/v4/nodes/" + url.PathEscape(certname) + "/facts"
	if err := c.get(ctx, endpoint, "", &facts); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(facts))
	for _, f := range facts {
		out[f.Name] = f.Value
	}
	return out, nil
}

// Resources returns the resources matching query.
func (c *Client) Resources(ctx context.Context, query string) ([]Resource, error) {
	var resources []Resource
	if err := c.get(ctx, "/pdb/query/v4/resources", query, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// get performs one GET with retry on transient failures. Responses with
// a 5xx status are retried, anything else in the error range is
// permanent.
func (c *Client) get(ctx context.Context, endpoint, query string, out any) error {
	u := c.baseURL + endpoint
	if query != "" {
		u += "?query=" + url.QueryEscape(query)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseSize))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("puppetdb: %s returned %s", endpoint, resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("puppetdb: %s returned %s: %s", endpoint, resp.Status, body))
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("puppetdb: decode %s response: %w", endpoint, err))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(op, policy)
}
