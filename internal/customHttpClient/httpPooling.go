package customHttpClient

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/akolanti/CivicRAG/internal/config"
)

var (
	once            sync.Once
	sharedTransport *http.Transport
)

// transport shared by every provider client so embedding, generation and translation calls reuse
// connections to the same hosts
func transport() *http.Transport {
	once.Do(func() {
		sharedTransport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        config.MaxIdleConns,
			MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
			IdleConnTimeout:     config.IdleConnTimeout,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	})
	return sharedTransport
}

// NewClient returns an http.Client on the pooled transport. Per request deadlines come from the
// context, timeout is only the upper bound.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: transport(),
		Timeout:   timeout,
	}
}

// CloseIdle drops pooled connections, called on shutdown.
func CloseIdle() {
	transport().CloseIdleConnections()
}
