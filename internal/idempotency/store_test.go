package idempotency

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func newMemRepo() *memRepo {
	return &memRepo{entries: make(map[string]Entry)}
}

func entryKey(orgID, scope, key string) string {
	return orgID + "/" + scope + "/" + key
}

func (m *memRepo) TryBegin(_ context.Context, e Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey(e.OrgID, e.Scope, e.Key)
	if _, exists := m.entries[k]; exists {
		return false, nil
	}
	e.Status = StatusPending
	e.CreatedAt = time.Now()
	m.entries[k] = e
	return true, nil
}

func (m *memRepo) Get(_ context.Context, orgID, scope, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryKey(orgID, scope, key)]
	return e, ok, nil
}

func (m *memRepo) Complete(_ context.Context, orgID, scope, key string, responseStatus int, responseBody []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey(orgID, scope, key)
	e := m.entries[k]
	e.Status = StatusComplete
	e.ResponseStatus = responseStatus
	e.ResponseBody = responseBody
	m.entries[k] = e
	return nil
}

func (m *memRepo) Abandon(_ context.Context, orgID, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entryKey(orgID, scope, key)
	if e, ok := m.entries[k]; ok && e.Status == StatusPending {
		delete(m.entries, k)
	}
	return nil
}

func (m *memRepo) Cleanup(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func TestExecuteRunsOnceAndReplays(t *testing.T) {
	store := NewStore(newMemRepo())
	hash := HashPayload([]byte(`{"gross":1000}`))
	calls := 0
	fn := func(context.Context) (int, []byte, error) {
		calls++
		return http.StatusCreated, []byte(`{"journalId":"j-1"}`), nil
	}

	first, err := store.Execute(context.Background(), "org-1", "settlement", "key-1", hash, fn)
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Equal(t, http.StatusCreated, first.Status)

	second, err := store.Execute(context.Background(), "org-1", "settlement", "key-1", hash, fn)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 1, calls)
}

func TestExecuteRejectsPayloadMismatch(t *testing.T) {
	store := NewStore(newMemRepo())
	fn := func(context.Context) (int, []byte, error) {
		return http.StatusCreated, nil, nil
	}

	_, err := store.Execute(context.Background(), "org-1", "settlement", "key-1", HashPayload([]byte(`a`)), fn)
	require.NoError(t, err)

	_, err = store.Execute(context.Background(), "org-1", "settlement", "key-1", HashPayload([]byte(`b`)), fn)
	require.ErrorIs(t, err, ErrConflict)
}

func TestExecuteScopesKeysPerOrg(t *testing.T) {
	store := NewStore(newMemRepo())
	calls := 0
	fn := func(context.Context) (int, []byte, error) {
		calls++
		return http.StatusCreated, nil, nil
	}
	hash := HashPayload([]byte(`x`))

	_, err := store.Execute(context.Background(), "org-a", "settlement", "key-1", hash, fn)
	require.NoError(t, err)
	out, err := store.Execute(context.Background(), "org-b", "settlement", "key-1", hash, fn)
	require.NoError(t, err)

	assert.False(t, out.Replayed)
	assert.Equal(t, 2, calls)
}

func TestExecuteServerFailureLeavesNoRecord(t *testing.T) {
	store := NewStore(newMemRepo())
	hash := HashPayload([]byte(`x`))
	boom := errors.New("db down")
	calls := 0

	_, err := store.Execute(context.Background(), "org-1", "settlement", "key-1", hash, func(context.Context) (int, []byte, error) {
		calls++
		return 0, nil, boom
	})
	require.ErrorIs(t, err, boom)

	out, err := store.Execute(context.Background(), "org-1", "settlement", "key-1", hash, func(context.Context) (int, []byte, error) {
		calls++
		return http.StatusCreated, []byte(`ok`), nil
	})
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.Equal(t, 2, calls)
}

func TestExecuteFiveHundredNotRecorded(t *testing.T) {
	store := NewStore(newMemRepo())
	hash := HashPayload([]byte(`x`))
	calls := 0

	out, err := store.Execute(context.Background(), "org-1", "settlement", "key-1", hash, func(context.Context) (int, []byte, error) {
		calls++
		return http.StatusInternalServerError, []byte(`oops`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, out.Status)

	out, err = store.Execute(context.Background(), "org-1", "settlement", "key-1", hash, func(context.Context) (int, []byte, error) {
		calls++
		return http.StatusCreated, nil, nil
	})
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.Equal(t, 2, calls)
}

func TestExecuteClientErrorIsReplayed(t *testing.T) {
	store := NewStore(newMemRepo())
	hash := HashPayload([]byte(`x`))
	calls := 0
	fn := func(context.Context) (int, []byte, error) {
		calls++
		return http.StatusUnprocessableEntity, []byte(`bad batch`), nil
	}

	_, err := store.Execute(context.Background(), "org-1", "settlement", "key-1", hash, fn)
	require.NoError(t, err)

	out, err := store.Execute(context.Background(), "org-1", "settlement", "key-1", hash, fn)
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, http.StatusUnprocessableEntity, out.Status)
	assert.Equal(t, 1, calls)
}
