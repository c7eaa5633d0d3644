package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateResetClearsFlag(t *testing.T) {
	st := NewState()
	st.Cancel()
	require.True(t, st.Cancelled())

	ctx := st.Reset(context.Background())
	require.False(t, st.Cancelled())
	require.NoError(t, ctx.Err())
}

func TestStateCancelAbortsQueryContext(t *testing.T) {
	st := NewState()
	ctx := st.Reset(context.Background())

	st.Cancel()
	require.True(t, st.Cancelled())
	require.Error(t, ctx.Err())
}

func TestStateIdleCancelIsSafe(t *testing.T) {
	st := NewState()
	// No query has ever run; cancel must not panic and must stick.
	st.Cancel()
	st.Cancel()
	require.True(t, st.Cancelled())
}

func TestStateFlagSurvivesRelease(t *testing.T) {
	st := NewState()
	st.Reset(context.Background())
	st.Cancel()
	st.Release()
	require.True(t, st.Cancelled())
}

func TestStateNewQueryAfterCancel(t *testing.T) {
	st := NewState()
	first := st.Reset(context.Background())
	st.Cancel()
	st.Release()

	second := st.Reset(context.Background())
	require.Error(t, first.Err())
	require.NoError(t, second.Err())
	require.False(t, st.Cancelled())
}
