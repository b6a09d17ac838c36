package pubsub

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindpalace/backend/pkg/logger"
)

type nopDeliverer struct{}

func (nopDeliverer) DeliverLocal(string, []byte) {}

// unreachableRelay points at a port nothing listens on.
func unreachableRelay(t *testing.T, out *bytes.Buffer) *RedisRelay {
	t.Helper()
	client := NewClient("redis://127.0.0.1:1/0")
	t.Cleanup(func() { _ = client.Close() })
	log := logger.New(logger.Config{Level: "debug", JSON: true, Output: out})
	return NewRedisRelay(client, "", "gw-test", log).
		WithTimings(200*time.Millisecond, 10*time.Millisecond, 20*time.Millisecond)
}

func TestEnvelopeSkipsOwnFrames(t *testing.T) {
	frame := []byte(`{"type":"message","content":{"text":"hi"}}`)
	payload, err := encode("gw-a", "inst:INST1", frame)
	require.NoError(t, err)

	room, got, remote, err := decode("gw-b", payload)
	require.NoError(t, err)
	assert.True(t, remote)
	assert.Equal(t, "inst:INST1", room)
	assert.JSONEq(t, string(frame), string(got))

	_, _, remote, err = decode("gw-a", payload)
	require.NoError(t, err)
	assert.False(t, remote)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, _, err := decode("gw", []byte("not json"))
	assert.Error(t, err)
	_, _, _, err = decode("gw", []byte(`{"origin":"x","frame":{}}`))
	assert.Error(t, err)
}

func TestNewClientAcceptsURLAndAddr(t *testing.T) {
	c := NewClient("redis://localhost:6380/2")
	assert.Equal(t, "localhost:6380", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)

	c = NewClient("cache:6379")
	assert.Equal(t, "cache:6379", c.Options().Addr)
}

func TestRunRetriesSubscribeUntilCancelled(t *testing.T) {
	var out bytes.Buffer
	relay := unreachableRelay(t, &out)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := relay.Run(ctx, nopDeliverer{})

	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled), "got %v", err)
	assert.GreaterOrEqual(t, strings.Count(out.String(), "room relay subscribe failed, retrying"), 2)
}

func TestPublishGivesUpAfterTimeout(t *testing.T) {
	var out bytes.Buffer
	relay := unreachableRelay(t, &out)

	start := time.Now()
	err := relay.Publish(context.Background(), "inst:INST1", []byte(`{"type":"message"}`))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
