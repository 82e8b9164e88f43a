package resilience

import (
	"log/slog"
	"net"
	"net/http"
	"time"
)

// CallObserver is told about every round trip made through a ConnectionPool
type CallObserver func(service string, method string, endpoint string, statusCode int, duration time.Duration, err error)

// PoolConfig tunes the shared transport of a ConnectionPool
type PoolConfig struct {
	MaxIdle         int
	MaxActive       int
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	DialTimeout     time.Duration
	TLSHandshake    time.Duration
	ResponseHeaders time.Duration
}

// DefaultPoolConfig returns transport settings suited to a handful of API hosts
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdle:         20,
		MaxActive:       20,
		IdleTimeout:     90 * time.Second,
		DialTimeout:     5 * time.Second,
		TLSHandshake:    10 * time.Second,
		ResponseHeaders: 30 * time.Second,
	}
}

// ConnectionPool owns a pooled transport guarded by a circuit breaker.
// Its Client is handed to the SDKs so every upstream call goes through the breaker.
type ConnectionPool struct {
	name           string
	circuitBreaker *CircuitBreaker
	transport      *http.Transport
	client         *http.Client
}

// NewConnectionPool creates a pool for one upstream service
func NewConnectionPool(name string, cfg PoolConfig, cb *CircuitBreaker, observer CallObserver) *ConnectionPool {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdle,
		MaxIdleConnsPerHost:   cfg.MaxIdle,
		MaxConnsPerHost:       cfg.MaxActive,
		IdleConnTimeout:       cfg.IdleTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshake,
		ResponseHeaderTimeout: cfg.ResponseHeaders,
		ExpectContinueTimeout: 1 * time.Second,
	}

	pool := &ConnectionPool{
		name:           name,
		circuitBreaker: cb,
		transport:      transport,
	}

	pool.client = &http.Client{
		Transport: &breakerTransport{
			name:     name,
			base:     transport,
			breaker:  cb,
			observer: observer,
		},
		Timeout: cfg.RequestTimeout,
	}

	return pool
}

// Client returns the breaker-guarded HTTP client
func (cp *ConnectionPool) Client() *http.Client {
	return cp.client
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"service":               cp.name,
		"max_idle":              cp.transport.MaxIdleConns,
		"max_active":            cp.transport.MaxConnsPerHost,
		"idle_timeout_ms":       cp.transport.IdleConnTimeout.Milliseconds(),
		"circuit_breaker_state": cp.circuitBreaker.State().String(),
	}
}

// Close releases idle connections
func (cp *ConnectionPool) Close() error {
	cp.transport.CloseIdleConnections()
	slog.Info("Connection pool closed", "service", cp.name)
	return nil
}

type breakerTransport struct {
	name     string
	base     http.RoundTripper
	breaker  *CircuitBreaker
	observer CallObserver
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.Allow(); err != nil {
		t.observe(req, 0, 0, err)
		return nil, err
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	// 4xx replies are the caller's problem, not the upstream's
	failed := err != nil || status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
	t.breaker.Record(!failed)
	t.observe(req, status, duration, err)

	return resp, err
}

func (t *breakerTransport) observe(req *http.Request, status int, duration time.Duration, err error) {
	if t.observer == nil {
		return
	}
	if err == nil && (status >= http.StatusInternalServerError || status == http.StatusTooManyRequests) {
		err = NewHTTPError(status, http.StatusText(status))
	}
	t.observer(t.name, req.Method, req.URL.Path, status, duration, err)
}
