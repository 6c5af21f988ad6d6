package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-ci/kestrel/internal/pipeline"
)

// MockStep implements Step for testing and records which entries it
// ran for.
type MockStep struct {
	id     string
	status Status

	mu  sync.Mutex
	ran []string
}

func (m *MockStep) ID() string { return m.id }

func (m *MockStep) Run(ctx context.Context, deps *Deps) StepResult {
	m.mu.Lock()
	m.ran = append(m.ran, deps.Entry.ID)
	m.mu.Unlock()
	return StepResult{Step: m.id, Status: m.status, ExitCode: exitFor(m.status)}
}

func (m *MockStep) ranFor(entryID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.ran {
		if id == entryID {
			return true
		}
	}
	return false
}

func exitFor(s Status) int {
	if s == StatusFail {
		return 1
	}
	return 0
}

func testEntries() []pipeline.Entry {
	return []pipeline.Entry{
		{ID: "linux-python3.7", OS: "linux", Runtime: "3.7", Kind: "python"},
		{ID: "osx-python3.7", OS: "osx", Runtime: "3.7", Kind: "python"},
	}
}

func newTestEngine(t *testing.T, steps []Step, opts Options) (*Engine, *StateStore) {
	t.Helper()
	store := NewStateStore(t.TempDir())
	return New(steps, store, &Deps{}, nil, opts), store
}

func TestEngine_Run_AllPass(t *testing.T) {
	install := &MockStep{id: "install", status: StatusPass}
	test := &MockStep{id: "test", status: StatusPass}

	e, store := newTestEngine(t, []Step{install, test}, Options{AllOS: true})

	last, err := e.Run(context.Background(), testEntries())
	require.NoError(t, err)

	assert.Equal(t, "pass", last.Status)
	assert.Equal(t, []string{"linux-python3.7", "osx-python3.7"}, last.Entries)
	assert.Empty(t, last.Failed)
	assert.NotEmpty(t, last.ID)

	persisted, err := store.ReadLastRun()
	require.NoError(t, err)
	assert.Equal(t, last.Status, persisted.Status)

	res, err := store.ReadEntryResult("linux-python3.7")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StatusPass, res.Status)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "install", res.Steps[0].Step)
	assert.Equal(t, "test", res.Steps[1].Step)
}

func TestEngine_Run_FailureDoesNotStopOtherEntries(t *testing.T) {
	failing := &MockStep{id: "test", status: StatusFail}

	e, store := newTestEngine(t, []Step{failing}, Options{AllOS: true})

	last, err := e.Run(context.Background(), testEntries())
	require.NoError(t, err)

	assert.Equal(t, "fail", last.Status)
	assert.Equal(t, []string{"linux-python3.7", "osx-python3.7"}, last.Failed)

	// Both entries ran despite both failing.
	assert.True(t, failing.ranFor("linux-python3.7"))
	assert.True(t, failing.ranFor("osx-python3.7"))

	persisted, err := store.ReadLastRun()
	require.NoError(t, err)
	assert.Equal(t, "fail", persisted.Status)
}

func TestEngine_Run_StepFailureAbortsEntry(t *testing.T) {
	install := &MockStep{id: "install", status: StatusFail}
	test := &MockStep{id: "test", status: StatusPass}

	e, _ := newTestEngine(t, []Step{install, test}, Options{AllOS: true})

	last, err := e.Run(context.Background(), testEntries()[:1])
	require.NoError(t, err)
	assert.Equal(t, "fail", last.Status)

	// The test step must never run after a failed install.
	assert.True(t, install.ranFor("linux-python3.7"))
	assert.False(t, test.ranFor("linux-python3.7"))
}

func TestEngine_Run_SkipsForeignOS(t *testing.T) {
	step := &MockStep{id: "test", status: StatusPass}

	e, store := newTestEngine(t, []Step{step}, Options{HostOS: "linux"})

	last, err := e.Run(context.Background(), testEntries())
	require.NoError(t, err)

	// Skips do not fail the run.
	assert.Equal(t, "pass", last.Status)
	assert.True(t, step.ranFor("linux-python3.7"))
	assert.False(t, step.ranFor("osx-python3.7"))

	res, err := store.ReadEntryResult("osx-python3.7")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StatusSkip, res.Status)
	assert.Contains(t, res.Note, "requires osx")
}

func TestEngine_Run_Serial(t *testing.T) {
	step := &MockStep{id: "test", status: StatusPass}

	e, _ := newTestEngine(t, []Step{step}, Options{AllOS: true, Serial: true})

	_, err := e.Run(context.Background(), testEntries())
	require.NoError(t, err)

	step.mu.Lock()
	defer step.mu.Unlock()
	assert.Equal(t, []string{"linux-python3.7", "osx-python3.7"}, step.ran)
}

func TestEngine_Resume(t *testing.T) {
	step := &MockStep{id: "test", status: StatusPass}

	e, store := newTestEngine(t, []Step{step}, Options{AllOS: true})

	// Seed a failing previous run.
	require.NoError(t, store.WriteLastRun(LastRun{
		Status:  "fail",
		Entries: []string{"linux-python3.7", "osx-python3.7"},
		Failed:  []string{"osx-python3.7"},
	}))

	last, err := e.Resume(context.Background(), testEntries())
	require.NoError(t, err)
	require.NotNil(t, last)

	// Only the previously failed entry re-ran, and the new summary
	// covers just the resumed entries.
	assert.False(t, step.ranFor("linux-python3.7"))
	assert.True(t, step.ranFor("osx-python3.7"))
	assert.Equal(t, "pass", last.Status)
	assert.Equal(t, []string{"osx-python3.7"}, last.Entries)
}

func TestEngine_Resume_NothingToResume(t *testing.T) {
	step := &MockStep{id: "test", status: StatusPass}

	e, _ := newTestEngine(t, []Step{step}, Options{AllOS: true})

	last, err := e.Resume(context.Background(), testEntries())
	require.NoError(t, err)
	assert.Nil(t, last)
	assert.Empty(t, step.ran)
}
