package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_RoundTrip(t *testing.T) {
	store := NewStateStore(t.TempDir())

	// Clean state reads as nil.
	last, err := store.ReadLastRun()
	require.NoError(t, err)
	assert.Nil(t, last)

	res := EntryResult{
		Entry:   "linux-python3.7",
		OS:      "linux",
		Runtime: "3.7",
		Status:  StatusFail,
		Steps: []StepResult{
			{Step: "install", Status: StatusPass},
			{Step: "test", Status: StatusFail, ExitCode: 1, Note: "2 failed"},
		},
	}
	require.NoError(t, store.WriteEntryResult(res))

	got, err := store.ReadEntryResult("linux-python3.7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, res, *got)

	require.NoError(t, store.WriteLastRun(LastRun{
		ID:      "run-1",
		Status:  "fail",
		Entries: []string{"linux-python3.7"},
		Failed:  []string{"linux-python3.7"},
	}))

	failed, err := store.FailedEntries()
	require.NoError(t, err)
	assert.Equal(t, []string{"linux-python3.7"}, failed)

	require.NoError(t, store.Reset())
	last, err = store.ReadLastRun()
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestStateStore_Lock(t *testing.T) {
	dir := t.TempDir()
	store := NewStateStore(dir)

	release, err := store.Lock()
	require.NoError(t, err)

	// A second locker against the same dir must fail fast.
	_, err = NewStateStore(dir).Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")

	release()

	release2, err := NewStateStore(dir).Lock()
	require.NoError(t, err)
	release2()
}

func TestStateStore_Paths(t *testing.T) {
	store := NewStateStore("/state")

	assert.Equal(t, filepath.Join("/state", "workspaces", "e1"), store.WorkspaceDir("e1"))
	assert.Equal(t, filepath.Join("/state", "logs", "e1.log"), store.LogPath("e1"))
}
