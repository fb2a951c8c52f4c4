package pprof

import (
	"context"
	"net/http"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "stockwatch/pkg/logx"
)

func get(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func TestApplyEnableDisable(t *testing.T) {
	srv := New(logx.Nop())
	t.Cleanup(func() { srv.Stop(context.Background()) })
	prevMutex := runtime.SetMutexProfileFraction(-1)
	t.Cleanup(func() {
		runtime.SetMutexProfileFraction(prevMutex)
		runtime.SetBlockProfileRate(0)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cfg := Config{Enabled: true, Address: "127.0.0.1:0", BlockProfileRate: 1, MutexProfileFraction: 7}
	require.NoError(t, srv.Apply(ctx, cfg))
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	code, err := get(ctx, "http://"+addr+"/debug/pprof/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 7, runtime.SetMutexProfileFraction(-1))

	// same config keeps the listener
	require.NoError(t, srv.Apply(ctx, cfg))
	assert.Equal(t, addr, srv.Addr())

	require.NoError(t, srv.Apply(ctx, Config{}))
	assert.Empty(t, srv.Addr())
}

func TestApplyListenFailure(t *testing.T) {
	srv := New(logx.Nop())
	t.Cleanup(func() { srv.Stop(context.Background()) })

	err := srv.Apply(context.Background(), Config{Enabled: true, Address: "256.0.0.1:bad"})
	require.Error(t, err)
	assert.Empty(t, srv.Addr())
}
