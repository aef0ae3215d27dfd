package tagcancel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// newUnreachableClient points at a closed local port with a short dial
// timeout so Publish fails fast instead of blocking; RedisRegistry treats
// publish as best-effort and must not let a broken connection affect the
// local cancellation result.
func newUnreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})
}

func TestRedisRegistry_CancelByTagCancelsLocallyEvenIfPublishFails(t *testing.T) {
	reg := NewRedisRegistry(newUnreachableClient(), "vortex:tag-cancel")
	a := &fakeCancelable{}
	reg.AddTagTask("job-7", a, "owner-a")

	n := reg.CancelByTag("job")

	assert.Equal(t, 1, n)
	assert.True(t, a.canceled)
}

func TestRedisRegistry_RemoveTagTaskExcludesFromFutureCancel(t *testing.T) {
	reg := NewRedisRegistry(newUnreachableClient(), "vortex:tag-cancel")
	a := &fakeCancelable{}
	reg.AddTagTask("job-7", a, "owner-a")
	reg.RemoveTagTask("owner-a")

	n := reg.CancelByTag("job")

	assert.Equal(t, 0, n)
	assert.False(t, a.canceled)
}

func TestCancelMessage_RoundTripsThroughJSON(t *testing.T) {
	msg := cancelMessage{Tag: "user.42"}
	data, err := json.Marshal(msg)
	assert.NoError(t, err)

	var decoded cancelMessage
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg, decoded)
}
