package datasource

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/mapper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 10 << 20
)

var (
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedwatch_fetch_duration_seconds",
		Help:    "Data source request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)

type Config struct {
	Timeout         time.Duration
	UserAgent       string
	FollowRedirects bool
	VerifyTLS       bool
}

// Request describes one call to an upstream API.
type Request struct {
	URL      string
	Method   endpoint.Method
	Headers  map[string]string
	Query    map[string]string
	Body     map[string]any
	AuthType endpoint.AuthType
	Token    string
	Username string
	Password string
}

func RequestFor(cfg *endpoint.Config) Request {
	return Request{
		URL:      cfg.APIEndpoint,
		Method:   cfg.NormalizedMethod(),
		Headers:  cfg.Headers,
		Query:    cfg.Query,
		Body:     cfg.Body,
		AuthType: cfg.NormalizedAuth(),
		Token:    cfg.AuthToken,
		Username: cfg.AuthUsername,
		Password: cfg.AuthPassword,
	}
}

// Result never carries a Go error: every failure is folded into OK=false.
type Result struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FailureText is the message recorded as lastFailureMessage.
func (r Result) FailureText() string {
	if r.Error != "" {
		return r.Error
	}
	if r.Status != 0 {
		return fmt.Sprintf("request failed with status code %d", r.Status)
	}
	return "request failed"
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) Result
}

type Client struct {
	c   *http.Client
	cfg Config
	log *zap.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		c:   NewHTTPClient(cfg),
		cfg: cfg,
		log: zap.L().With(zap.String("component", "datasource")),
	}
}

func (cl *Client) WithLogger(l *zap.Logger) *Client {
	if l == nil {
		return cl
	}
	cp := *cl
	cp.log = l.With(zap.String("component", "datasource"))
	return &cp
}

// NewHTTPClient builds the shared outbound client, traced through otelhttp.
func NewHTTPClient(cfg Config) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifyTLS,
			MinVersion:         tls.VersionTLS12,
		},
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(transport),
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

func (cl *Client) Fetch(ctx context.Context, in Request) Result {
	start := time.Now()
	res := cl.fetch(ctx, in)
	outcome := "ok"
	if !res.OK {
		outcome = "failure"
	}
	fetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return res
}

func (cl *Client) fetch(ctx context.Context, in Request) Result {
	ctx, cancel := context.WithTimeout(ctx, cl.cfg.Timeout)
	defer cancel()

	req, err := cl.build(ctx, in)
	if err != nil {
		return Result{Error: err.Error()}
	}

	resp, err := cl.c.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Result{Error: fmt.Sprintf("timeout of %dms exceeded", cl.cfg.Timeout.Milliseconds())}
		}
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{Status: resp.StatusCode, Error: fmt.Sprintf("read body: %v", err)}
	}
	data, derr := mapper.DecodeBytes(raw)
	if derr != nil {
		// Not JSON: keep the text so callers can still show it.
		data = string(raw)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Status: resp.StatusCode,
			Data:   data,
			Error:  fmt.Sprintf("request failed with status code %d", resp.StatusCode),
		}
	}
	return Result{OK: true, Status: resp.StatusCode, Data: data}
}

func (cl *Client) build(ctx context.Context, in Request) (*http.Request, error) {
	u, err := url.Parse(in.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", in.URL)
	}
	if len(in.Query) > 0 {
		q := u.Query()
		for k, v := range in.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	method := in.Method
	if method == "" {
		method = endpoint.MethodGet
	}

	var body io.Reader
	if method != endpoint.MethodGet && in.Body != nil {
		b, err := json.Marshal(in.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, string(method), u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cl.cfg.UserAgent)
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}

	switch in.AuthType {
	case endpoint.AuthBearer:
		if in.Token != "" {
			req.Header.Set("Authorization", "Bearer "+in.Token)
		}
	case endpoint.AuthBasic:
		if in.Username != "" || in.Password != "" {
			req.SetBasicAuth(in.Username, in.Password)
		}
	}
	return req, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
