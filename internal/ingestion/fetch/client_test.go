package fetch

import (
	"net/http"
	"testing"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsingest/internal/config"
)

func TestNewHTTPClient(t *testing.T) {
	cfg := &config.TransportConfig{
		Protocol:        ProtocolHTTP2,
		KeepAlive:       30 * time.Second,
		MaxIdleConns:    8,
		IdleConnTimeout: time.Minute,
	}

	client, err := NewHTTPClient(cfg)
	require.NoError(t, err)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 8, transport.MaxIdleConnsPerHost)
	assert.True(t, transport.ForceAttemptHTTP2)

	cfg.Protocol = ProtocolHTTP3
	client, err = NewHTTPClient(cfg)
	require.NoError(t, err)
	rt, ok := client.Transport.(*http3.RoundTripper)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, rt.QUICConfig.KeepAlivePeriod)

	cfg.Protocol = "spdy"
	_, err = NewHTTPClient(cfg)
	assert.Error(t, err)
}
