package guard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryAcquireRejectsSecondHolder(t *testing.T) {
	g := New()

	release, err := g.TryAcquire("s1")
	require.NoError(t, err)

	// A mining run and a sync for the same session share one slot, so
	// whichever comes second is rejected.
	_, err = g.TryAcquire("s1")
	require.ErrorIs(t, err, ErrBusy)

	// A different session is an independent slot.
	r2, err := g.TryAcquire("s2")
	require.NoError(t, err)
	r2()

	release()
	release, err = g.TryAcquire("s1")
	require.NoError(t, err)
	release()
}

func TestSyncOverMinedSessionIsRejected(t *testing.T) {
	g := New()

	// A mining run holds the session while a multi-session sync binding it
	// comes in.
	mining, err := g.TryAcquire("s2")
	require.NoError(t, err)

	_, err = g.TryAcquireAll([]string{"s1", "s2"})
	require.ErrorIs(t, err, ErrBusy)

	mining()
}

func TestTryAcquireAllIsAllOrNothing(t *testing.T) {
	g := New()

	hold, err := g.TryAcquire("s2")
	require.NoError(t, err)

	_, err = g.TryAcquireAll([]string{"s1", "s2", "s3"})
	require.ErrorIs(t, err, ErrBusy)

	// The failed acquisition must not leave s1 held.
	r1, err := g.TryAcquire("s1")
	require.NoError(t, err)
	r1()

	hold()
	all, err := g.TryAcquireAll([]string{"s1", "s2", "s3"})
	require.NoError(t, err)
	_, err = g.TryAcquire("s3")
	require.ErrorIs(t, err, ErrBusy)
	all()
}
