package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/tcptap/tcptap/dissect"
	"github.com/tcptap/tcptap/flow"
)

func openFlows(t *testing.T, r *Ring, table *flow.Table, n int) []*flow.State {
	t.Helper()
	states := make([]*flow.State, 0, n)
	for i := 0; i < n; i++ {
		st := table.Create(testKey(uint32(i+1)), 0)
		require.NoError(t, r.Open(st))
		require.NotNil(t, st.File)
		states = append(states, st)
	}
	return states
}

func TestRingEvictsOldestOnWrap(t *testing.T) {
	chtmp(t)
	r := NewRing(2)
	table := flow.NewTable()

	states := openFlows(t, r, table, 2)

	// Bump the first flow so the second is now the oldest.
	table.Find(states[0].Key)

	third := table.Create(testKey(3), 0)
	require.NoError(t, r.Open(third))

	assert.NotNil(t, states[0].File)
	assert.Nil(t, states[1].File)
	assert.NotNil(t, third.File)
	assert.Equal(t, 2, r.OpenFiles())
}

func TestRingContract(t *testing.T) {
	chtmp(t)
	r := NewRing(4)
	table := flow.NewTable()

	states := openFlows(t, r, table, 3)

	require.NoError(t, r.contract())

	// Oldest closed, ring one slot smaller, the rest still open.
	assert.Nil(t, states[0].File)
	assert.NotNil(t, states[1].File)
	assert.NotNil(t, states[2].File)
	assert.Len(t, r.slots, 3)
	assert.Equal(t, 2, r.OpenFiles())
}

func TestRingContractToNothing(t *testing.T) {
	chtmp(t)
	r := NewRing(1)
	table := flow.NewTable()

	states := openFlows(t, r, table, 1)

	// Contracting away the last slot ends the run.
	assert.Error(t, r.contract())
	assert.Nil(t, states[0].File)
}

func TestRingCloseAll(t *testing.T) {
	chtmp(t)
	r := NewRing(4)
	table := flow.NewTable()

	states := openFlows(t, r, table, 3)
	r.CloseAll()

	assert.Equal(t, 0, r.OpenFiles())
	for _, st := range states {
		assert.Nil(t, st.File)
		assert.Zero(t, st.Pos)
	}
}

func TestRingReopenKeepsExisting(t *testing.T) {
	chtmp(t)
	r := NewRing(2)
	table := flow.NewTable()

	st := table.Create(testKey(1), 0)
	require.NoError(t, r.Open(st))
	_, err := st.File.WriteString("payload")
	require.NoError(t, err)
	r.Close(st)

	require.NoError(t, r.Open(st))
	assert.True(t, st.Has(flow.FileExists))
	assert.Equal(t, int64(0), st.Pos)

	fi, err := st.File.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(7), fi.Size())
}

func TestRingUnrecoverableOpenFinishesFlow(t *testing.T) {
	chtmp(t)
	r := NewRing(2)
	table := flow.NewTable()

	st := table.Create(testKey(1), 0)
	// Pretend the file was created earlier; reopening without create
	// then fails with ENOENT, which is not a descriptor problem.
	st.Set(flow.FileExists)

	require.NoError(t, r.Open(st))
	assert.Nil(t, st.File)
	assert.True(t, st.Has(flow.Finished))
	assert.Equal(t, 0, r.OpenFiles())
}

// With the kernel limit dropped below the ring size, opens fail with
// EMFILE and the ring must contract until everything fits. Artifact
// contents stay correct throughout.
func TestRingContractsUnderDescriptorPressure(t *testing.T) {
	chtmp(t)

	var saved unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &saved))
	t.Cleanup(func() { unix.Setrlimit(unix.RLIMIT_NOFILE, &saved) })

	squeezed := saved
	squeezed.Cur = 32
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &squeezed); err != nil {
		t.Skipf("cannot lower RLIMIT_NOFILE: %v", err)
	}

	// A ring that believes it may hold far more descriptors than the
	// squeezed limit allows.
	w := NewWriter(flow.NewTable(), NewRing(64), 0)

	keys := make([]flow.Key, 40)
	for i := range keys {
		keys[i] = testKey(uint32(i + 1))
		require.NoError(t, w.Process(dissect.Segment{
			Key:     keys[i],
			Seq:     1,
			Payload: []byte("data"),
		}))
	}

	assert.Less(t, len(w.ring.slots), 64)

	// Free the ring's descriptors before reading the artifacts back.
	w.ring.CloseAll()
	for _, k := range keys {
		assert.Equal(t, []byte("data"), readArtifact(t, k))
	}
}
