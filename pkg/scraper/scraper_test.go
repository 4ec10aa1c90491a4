package scraper

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followsweep/pkg/collector"
	errs "followsweep/pkg/errors"
	"followsweep/pkg/filter"
	"followsweep/pkg/logger"
	"followsweep/pkg/models"
	"followsweep/pkg/session"
	"followsweep/pkg/store"
)

// mockSessions records Start calls and rejects a second one
type mockSessions struct {
	mu      sync.Mutex
	started []string
	running bool
}

func (m *mockSessions) Start(subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errs.New(errs.ErrorTypeAlreadyRunning, "session.start", "busy")
	}
	m.running = true
	m.started = append(m.started, subject)
	return nil
}

func (m *mockSessions) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.running
	m.running = false
	return was
}

func (m *mockSessions) Snapshot() session.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return session.Snapshot{State: session.Running}
	}
	return session.Snapshot{State: session.Idle}
}

func (m *mockSessions) Wait(ctx context.Context) (collector.Result, error) {
	return collector.Result{}, nil
}

// mockActions records handles per action
type mockActions struct {
	removed []string
	blocked []string
	err     error
}

func (m *mockActions) Remove(ctx context.Context, handle string) error {
	if m.err != nil {
		return m.err
	}
	m.removed = append(m.removed, handle)
	return nil
}

func (m *mockActions) Block(ctx context.Context, handle string) error {
	if m.err != nil {
		return m.err
	}
	m.blocked = append(m.blocked, handle)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "follower.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seed(t *testing.T, st *store.Store, subject string, bios map[string]string) {
	t.Helper()
	var recs []models.FollowerRecord
	for _, src := range []string{"bob", "carol", "dave"} {
		bio, ok := bios[src]
		if !ok {
			continue
		}
		recs = append(recs, models.FollowerRecord{
			SubjectAccount: subject,
			ProfileURL:     "https://x.com/" + src,
			AvatarURL:      "https://pbs.example/" + src,
			DisplayName:    strings.ToUpper(src),
			Handle:         "@" + src,
			Bio:            bio,
		})
	}
	_, err := st.UpsertBatch(context.Background(), recs)
	require.NoError(t, err)
}

func TestStartCollectionResolvesAccount(t *testing.T) {
	sessions := &mockSessions{}
	resolves := 0
	svc := New(sessions, newTestStore(t),
		WithLogger(logger.NewNopLogger()),
		WithAccountResolver(func(ctx context.Context) (string, error) {
			resolves++
			return "Alice", nil
		}))

	require.NoError(t, svc.StartCollection(context.Background(), ""))
	assert.Equal(t, []string{"alice"}, sessions.started)

	err := svc.StartCollection(context.Background(), "@Bob")
	assert.ErrorIs(t, err, errs.ErrAlreadyRunning)

	subject, err := svc.Subject(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", subject, "rejected start keeps the subject")
	assert.Equal(t, 1, resolves)

	assert.True(t, svc.StopCollection())
	require.NoError(t, svc.StartCollection(context.Background(), "@Bob"))
	assert.Equal(t, []string{"alice", "bob"}, sessions.started)
}

func TestSubjectRequired(t *testing.T) {
	svc := New(&mockSessions{}, newTestStore(t), WithLogger(logger.NewNopLogger()))
	_, err := svc.ProgressCount(context.Background())
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestProgressCountAndList(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "alice", map[string]string{"bob": "", "carol": ""})
	seed(t, st, "eve", map[string]string{"dave": ""})

	svc := New(&mockSessions{}, st, WithLogger(logger.NewNopLogger()))
	svc.UseSubject("alice")

	n, err := svc.ProgressCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recs, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "bob", recs[0].SourceID)
	assert.Equal(t, "carol", recs[1].SourceID)
}

func TestListFiltered(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "alice", map[string]string{
		"bob":   "16 and bored",
		"carol": "just here for cats",
		"dave":  "nothing to see",
	})
	svc := New(&mockSessions{}, st, WithLogger(logger.NewNopLogger()))
	svc.UseSubject("alice")
	ctx := context.Background()

	recs, err := svc.ListFiltered(ctx, filter.Config{})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs, "no enabled check matches nothing")

	recs, err = svc.ListFiltered(ctx, filter.Config{Underage: true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "bob", recs[0].SourceID)

	recs, err = svc.ListFiltered(ctx, filter.Config{Custom: []string{"CATS"}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "carol", recs[0].SourceID)
}

func TestRemoveRecord(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "alice", map[string]string{"bob": "", "carol": ""})
	actions := &mockActions{}
	svc := New(&mockSessions{}, st, WithActions(actions), WithLogger(logger.NewNopLogger()))
	svc.UseSubject("alice")
	ctx := context.Background()

	require.NoError(t, svc.RemoveRecord(ctx, "bob", false))
	require.NoError(t, svc.RemoveRecord(ctx, "Carol", true))
	assert.Equal(t, []string{"bob"}, actions.removed)
	assert.Equal(t, []string{"carol"}, actions.blocked)

	n, err := svc.ProgressCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = svc.RemoveRecord(ctx, "bob", false)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRemoveRecordKeepsRowOnRemoteFailure(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "alice", map[string]string{"bob": ""})
	remote := errors.New("menu never rendered")
	svc := New(&mockSessions{}, st, WithActions(&mockActions{err: remote}), WithLogger(logger.NewNopLogger()))
	svc.UseSubject("alice")

	err := svc.RemoveRecord(context.Background(), "bob", true)
	assert.ErrorIs(t, err, remote)

	n, err := svc.ProgressCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExportAll(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "alice", map[string]string{"bob": "hi", "carol": "yo"})
	svc := New(&mockSessions{}, st, WithLogger(logger.NewNopLogger()))
	svc.UseSubject("alice")

	var buf bytes.Buffer
	n, err := svc.ExportAll(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "record_key,"))
	assert.True(t, strings.HasPrefix(lines[1], "bob_alice,"))
}

// vacuumCounter counts compactions and can fail them
type vacuumCounter struct {
	*store.Store
	calls int
	err   error
}

func (v *vacuumCounter) Vacuum(ctx context.Context) error {
	v.calls++
	if v.err != nil {
		return v.err
	}
	return v.Store.Vacuum(ctx)
}

func TestClearAllCompactsStore(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "alice", map[string]string{"bob": "hi", "carol": "hello"})
	vc := &vacuumCounter{Store: st}
	svc := New(&mockSessions{}, vc, WithLogger(logger.NewNopLogger()))
	svc.UseSubject("alice")

	n, err := svc.ClearAll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 1, vc.calls)

	n, err = svc.ClearAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, vc.calls, "nothing deleted, nothing to compact")
}

func TestClearAllIgnoresCompactionFailure(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "alice", map[string]string{"bob": "hi"})
	vc := &vacuumCounter{Store: st, err: errs.New(errs.ErrorTypeStoreIO, "store.vacuum", "database is locked")}
	var fatal []error
	svc := New(&mockSessions{}, vc,
		WithFatalHandler(func(err error) { fatal = append(fatal, err) }),
		WithLogger(logger.NewNopLogger()))
	svc.UseSubject("alice")

	n, err := svc.ClearAll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, vc.calls)
	assert.Empty(t, fatal)

	count, err := svc.ProgressCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStoreFailureReachesFatalHandler(t *testing.T) {
	st := newTestStore(t)
	var fatal []error
	svc := New(&mockSessions{}, st,
		WithFatalHandler(func(err error) { fatal = append(fatal, err) }),
		WithLogger(logger.NewNopLogger()))
	svc.UseSubject("alice")
	require.NoError(t, st.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := svc.ClearAll(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsProcessFatal(err))
	assert.Len(t, fatal, 1)
}

func TestAbandonedCallIsNotFatal(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, "alice", map[string]string{"bob": "hi", "carol": "hello"})
	var fatal []error
	svc := New(&mockSessions{}, st,
		WithActions(&mockActions{}),
		WithFatalHandler(func(err error) { fatal = append(fatal, err) }),
		WithLogger(logger.NewNopLogger()))
	svc.UseSubject("alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ProgressCount(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = svc.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	err = svc.RemoveRecord(ctx, "bob", false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errs.IsProcessFatal(err))
	assert.Empty(t, fatal)

	n, err := svc.ProgressCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "rows survive an abandoned call")
}
