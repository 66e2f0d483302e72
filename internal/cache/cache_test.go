package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheExpiresAndPurges(t *testing.T) {
	c := New(true)
	defer c.Close()
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	etag := c.Set("ledger:a", []byte(`[1]`), time.Minute)
	c.Set("run:latest", []byte(`{}`), time.Minute)

	data, got, ok := c.Get("ledger:a")
	assert.True(t, ok)
	assert.Equal(t, etag, got)
	assert.Equal(t, `[1]`, string(data))

	assert.Equal(t, 1, c.Purge("ledger:"))
	_, _, ok = c.Get("ledger:a")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, _, ok = c.Get("run:latest")
	assert.False(t, ok)
	assert.Equal(t, Stats{Enabled: true, TotalKeys: 1, ExpiredKeys: 1}, c.Stats())
}

func TestDisabledCacheStillComputesETag(t *testing.T) {
	c := New(false)
	etag := c.Set("k", []byte("v"), time.Minute)
	assert.Equal(t, ComputeETag([]byte("v")), etag)
	_, _, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCheckETagMatch(t *testing.T) {
	etag := ComputeETag([]byte("v"))
	assert.True(t, CheckETagMatch(etag, etag))
	assert.True(t, CheckETagMatch(`W/"other", `+etag, etag))
	assert.True(t, CheckETagMatch("*", etag))
	assert.False(t, CheckETagMatch("", etag))
	assert.False(t, CheckETagMatch(`W/"other"`, etag))
}
