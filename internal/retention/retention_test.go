package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	cutoff time.Time
	calls  int
	err    error
}

func (p *fakePurger) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.calls++
	p.cutoff = cutoff
	return 4, p.err
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	t.Parallel()

	_, err := New(nil, &fakePurger{}, Config{Schedule: "every tuesday-ish"})
	assert.Error(t, err)

	_, err = New(nil, nil, Config{})
	assert.Error(t, err)
}

func TestRunOnce_UsesMaxAge(t *testing.T) {
	t.Parallel()

	p := &fakePurger{}
	j, err := New(nil, p, Config{Schedule: "0 3 * * *", MaxAge: 48 * time.Hour})
	require.NoError(t, err)
	fixed := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, fixed.Add(-48*time.Hour), p.cutoff)
}

func TestRunOnce_Disabled(t *testing.T) {
	t.Parallel()

	p := &fakePurger{}
	j, err := New(nil, p, Config{})
	require.NoError(t, err)
	assert.False(t, j.Enabled())

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, p.calls)
}

func TestRunOnce_PropagatesError(t *testing.T) {
	t.Parallel()

	j, err := New(nil, &fakePurger{err: errors.New("db down")}, Config{MaxAge: time.Hour})
	require.NoError(t, err)
	_, err = j.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	j, err := New(nil, &fakePurger{}, Config{MaxAge: time.Hour})
	require.NoError(t, err)
	j.Start()
	require.NoError(t, j.Stop(context.Background()))
}
