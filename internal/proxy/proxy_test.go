package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/fault"
	"github.com/aludratest/aludra/internal/pool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testProxyConfig() config.ProxyConfig {
	return config.ProxyConfig{
		Enabled:    true,
		ListenHost: "127.0.0.1",
		Username:   "user",
		Password:   "pass",
	}
}

// echoAuth answers with the Authorization header it received.
func echoAuth() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("Authorization"))
	}))
}

func getVia(t *testing.T, proxyAddr, target string, header http.Header) string {
	t.Helper()
	proxyURL, err := url.Parse("http://" + proxyAddr)
	require.NoError(t, err)
	tr := &http.Transport{Proxy: http.ProxyURL(proxyURL), DisableKeepAlives: true}
	defer tr.CloseIdleConnections()
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPoolInjectsBasicCredentials(t *testing.T) {
	backend := echoAuth()
	defer backend.Close()

	p := New(testProxyConfig(), 2, zaptest.NewLogger(t))
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer func() { require.NoError(t, p.Close(ctx)) }()

	addrs := p.Addrs()
	require.Len(t, addrs, 2)
	assert.NotEqual(t, addrs[0], addrs[1])

	req, _ := http.NewRequest(http.MethodGet, backend.URL, nil)
	req.SetBasicAuth("user", "pass")
	want := req.Header.Get("Authorization")

	for _, addr := range addrs {
		assert.Equal(t, want, getVia(t, addr, backend.URL, nil))
	}

	// An explicit Authorization header is left alone.
	assert.Equal(t, "Bearer token", getVia(t, addrs[0], backend.URL, http.Header{"Authorization": {"Bearer token"}}))
}

func TestPoolChainsToUpstream(t *testing.T) {
	seen := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Proxy-Authorization")
		_, _ = io.WriteString(w, "via upstream")
	}))
	defer upstream.Close()

	cfg := testProxyConfig()
	cfg.Upstream = "http://alice:secret@" + upstream.Listener.Addr().String()

	p := New(cfg, 1, zaptest.NewLogger(t))
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer func() { require.NoError(t, p.Close(ctx)) }()

	assert.Equal(t, "via upstream", getVia(t, p.Addrs()[0], "http://sut.example/login", nil))
	u, _ := url.Parse(cfg.Upstream)
	assert.Equal(t, proxyAuthorization(u), <-seen)
}

func TestPoolLifecycle(t *testing.T) {
	ctx := context.Background()
	p := New(testProxyConfig(), 0, zaptest.NewLogger(t))

	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, p.Close(ctx), ErrNotStarted)

	require.NoError(t, p.Start(ctx))
	assert.ErrorIs(t, p.Start(ctx), ErrAlreadyStarted)
	require.Len(t, p.Addrs(), 1, "size falls back to one proxy")

	addr, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.Addrs()[0], addr)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(short)
	assert.True(t, fault.IsTechnical(err), "acquire blocks while every proxy is in use")

	require.NoError(t, p.Release(addr))
	assert.ErrorIs(t, p.Release(addr), pool.ErrNotAcquired)

	require.NoError(t, p.Close(ctx))
	assert.Empty(t, p.Addrs())
}

func TestInvalidUpstream(t *testing.T) {
	cfg := testProxyConfig()
	cfg.Upstream = "http://[::1"
	p := New(cfg, 1, zaptest.NewLogger(t))
	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid upstream proxy")
}
