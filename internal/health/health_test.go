package health

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type busFlag bool

func (b busFlag) Connected() bool { return bool(b) }

func TestCheckConnected(t *testing.T) {
	c := NewChecker(busFlag(true), func() string { return "message_loop" }, func() int { return 7 })

	r := c.Check(context.Background())
	assert.Equal(t, "ok", r.Status)
	assert.Equal(t, "connected", r.Bus)
	assert.Equal(t, "message_loop", r.Subscriber)
	assert.False(t, r.StartedAt.IsZero())

	require.NotNil(t, r.Process)
	assert.Equal(t, int32(os.Getpid()), r.Process.PID)
	assert.Positive(t, r.Process.RSSMB)
	assert.Equal(t, 7, r.Process.Goroutines)
}

func TestCheckDegraded(t *testing.T) {
	r := NewChecker(busFlag(false), nil, nil).Check(context.Background())
	assert.Equal(t, "degraded", r.Status)
	assert.Equal(t, "disconnected", r.Bus)
	assert.Empty(t, r.Subscriber)

	r = NewChecker(nil, nil, nil).Check(context.Background())
	assert.Equal(t, "degraded", r.Status)
}
