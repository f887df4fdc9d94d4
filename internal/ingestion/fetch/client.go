package fetch

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/net/http2"

	"github.com/zsiec/tsingest/internal/config"
)

const (
	ProtocolHTTP2 = "http2"
	ProtocolHTTP3 = "http3"

	dialTimeout = 10 * time.Second
)

// NewHTTPClient builds the origin client. Keep-alive and connection reuse
// are on for both protocols; per-request deadlines come from the fetcher.
func NewHTTPClient(cfg *config.TransportConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	switch cfg.Protocol {
	case ProtocolHTTP2, "":
		transport := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: cfg.KeepAlive,
			}).DialContext,
			TLSClientConfig:     tlsConfig,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConns,
			IdleConnTimeout:     cfg.IdleConnTimeout,
			ForceAttemptHTTP2:   true,
		}
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("failed to configure http2 transport: %w", err)
		}
		return &http.Client{Transport: transport}, nil

	case ProtocolHTTP3:
		tlsConfig.NextProtos = []string{http3.NextProtoH3}
		return &http.Client{
			Transport: &http3.RoundTripper{
				TLSClientConfig: tlsConfig,
				QUICConfig: &quic.Config{
					KeepAlivePeriod: cfg.KeepAlive,
					MaxIdleTimeout:  cfg.IdleConnTimeout,
				},
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported transport protocol %q", cfg.Protocol)
	}
}
