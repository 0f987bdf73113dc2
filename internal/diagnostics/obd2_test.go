package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"carservice/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOBD2Server(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.Header.Get("x-rapidapi-key") != "test-key" || r.Header.Get("x-rapidapi-host") != "car-code.test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/obd2/P0300":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":       "P0300",
				"definition": "Random/Multiple Cylinder Misfire Detected",
				"cause":      []string{"Faulty spark plugs", "Vacuum leak"},
			})
		case "/obd2/P0500":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOBD2ClientDecode(t *testing.T) {
	var hits int32
	srv := newOBD2Server(t, &hits)
	c := NewOBD2Client(srv.URL+"/", "car-code.test", "test-key", time.Second)

	d, err := c.Decode(context.Background(), "P0300")
	require.NoError(t, err)
	assert.Equal(t, "P0300", d.Code)
	assert.Equal(t, []string{"Faulty spark plugs", "Vacuum leak"}, d.Causes)

	_, err = c.Decode(context.Background(), "P1111")
	assert.True(t, domain.IsNotFound(err))

	_, err = c.Decode(context.Background(), "P0500")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestOBD2ClientRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var hits int32
	srv := newOBD2Server(t, &hits)
	c := NewOBD2Client(srv.URL, "car-code.test", "test-key", time.Second)
	c.UseRedisCache(rdb, time.Hour)

	for i := 0; i < 3; i++ {
		d, err := c.Decode(context.Background(), "P0300")
		require.NoError(t, err)
		assert.Equal(t, "P0300", d.Code)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.True(t, mr.Exists(cachePrefix+"P0300"))

	mr.FastForward(2 * time.Hour)
	_, err := c.Decode(context.Background(), "P0300")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFallbackDecoder(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	t.Run("no remote uses local table", func(t *testing.T) {
		f := NewFallbackDecoder(nil, &logger)
		d, err := f.Decode(ctx, "P0420")
		require.NoError(t, err)
		assert.Contains(t, d.Definition, "Catalyst")

		_, err = f.Decode(ctx, "P1999")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("remote failure falls back", func(t *testing.T) {
		var hits int32
		srv := newOBD2Server(t, &hits)
		f := NewFallbackDecoder(NewOBD2Client(srv.URL, "car-code.test", "test-key", time.Second), &logger)

		d, err := f.Decode(ctx, "P0500")
		require.NoError(t, err)
		assert.Equal(t, "Vehicle Speed Sensor Malfunction", d.Definition)

		d, err = f.Decode(ctx, "P0300")
		require.NoError(t, err)
		assert.Equal(t, []string{"Faulty spark plugs", "Vacuum leak"}, d.Causes)
	})
}
