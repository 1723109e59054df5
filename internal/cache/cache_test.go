package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"perfstore/internal/core"
	"perfstore/internal/hdr"
)

func sampleData() *hdr.HdrData {
	return &hdr.HdrData{
		StartTimes:            []int64{1000, 2000},
		TPS:                   []float64{100, 200},
		Means:                 []float64{5, 5},
		Errors:                []float64{1, 1},
		TimedPercentiles:      map[string][]float64{"MEDIAN": {4, 5}},
		RoundedPercentiles:    hdr.PercentileSummary{"MEDIAN": 5000000},
		PercentilePoints:      []float64{0, 0.5},
		PercentileValues:      []float64{1, 5},
		FixedPercentileValues: []int64{1, 2, 3},
	}
}

func TestKeyIsStableAndDistinct(t *testing.T) {
	a := core.SummaryKey{RunID: 1, Operation: "read"}

	assert.Equal(t, Key(a), Key(a))
	assert.NotEqual(t, Key(a), Key(core.SummaryKey{RunID: 1, Operation: "write"}))
	assert.NotEqual(t, Key(a), Key(core.SummaryKey{RunID: 2, Operation: "read"}))
	assert.NotEqual(t, Key(a), Key(core.SummaryKey{RunID: 1, OutputID: 3}))
}

func TestCodecsRoundTrip(t *testing.T) {
	for _, codec := range []Codec{MsgpackCodec{}, JSONCodec{}} {
		b, err := codec.Marshal(sampleData())
		assert.NoError(t, err)

		got, err := codec.Unmarshal(b)
		assert.NoError(t, err)
		assert.Equal(t, sampleData(), got)
	}
}

func TestMemoryInvalidateRun(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)

	read := core.SummaryKey{RunID: 1, Operation: "read"}
	output := core.SummaryKey{RunID: 1, OutputID: 7}
	other := core.SummaryKey{RunID: 2, Operation: "read"}

	for _, k := range []core.SummaryKey{read, output, other} {
		assert.NoError(t, c.Set(ctx, k, sampleData()))
	}

	got, ok, err := c.Get(ctx, read)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float64{100, 200}, got.TPS)

	assert.NoError(t, c.InvalidateRun(ctx, 1))
	assert.Equal(t, 1, c.Len())

	_, ok, _ = c.Get(ctx, read)
	assert.False(t, ok)

	_, ok, _ = c.Get(ctx, other)
	assert.True(t, ok)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)
	key := core.SummaryKey{RunID: 1, Operation: "read"}

	assert.NoError(t, c.Set(ctx, key, sampleData()))

	first, _, _ := c.Get(ctx, key)
	first.TPS[0] = -1

	second, _, _ := c.Get(ctx, key)
	assert.Equal(t, 100.0, second.TPS[0])
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)

	c := NewMemory(time.Minute)
	c.now = func() time.Time { return now }

	key := core.SummaryKey{RunID: 1, Operation: "read"}
	assert.NoError(t, c.Set(ctx, key, sampleData()))

	now = now.Add(2 * time.Minute)

	_, ok, err := c.Get(ctx, key)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisInvalidateRun(t *testing.T) {
	addr := os.Getenv("PERFSTORE_TEST_REDIS")
	if addr == "" {
		t.Skip("PERFSTORE_TEST_REDIS not set")
	}

	ctx := context.Background()

	c, err := NewRedis(ctx, RedisConfig{Addr: addr, TTL: time.Minute})
	assert.NoError(t, err)

	defer c.Close()

	key := core.SummaryKey{RunID: 424242, Operation: "read"}
	assert.NoError(t, c.Set(ctx, key, sampleData()))

	got, ok, err := c.Get(ctx, key)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sampleData(), got)

	assert.NoError(t, c.InvalidateRun(ctx, key.RunID))

	_, ok, err = c.Get(ctx, key)
	assert.NoError(t, err)
	assert.False(t, ok)
}
