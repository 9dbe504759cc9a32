package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apgms/apgms/internal/platform/httpx"
	"github.com/apgms/apgms/internal/shared"
)

type memRepo struct {
	tokens map[string]Token
}

func newMemRepo() *memRepo {
	return &memRepo{tokens: make(map[string]Token)}
}

func (m *memRepo) FindByID(_ context.Context, id string) (*Token, error) {
	t, ok := m.tokens[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return &t, nil
}

func (m *memRepo) Create(_ context.Context, token Token) error {
	m.tokens[token.ID] = token
	return nil
}

func (m *memRepo) Revoke(_ context.Context, orgID, id string, at time.Time) error {
	t, ok := m.tokens[id]
	if !ok || t.OrgID != orgID || t.RevokedAt != nil {
		return httpx.ErrNotFound
	}
	t.RevokedAt = &at
	t.IsActive = false
	m.tokens[id] = t
	return nil
}

func TestIssueAndAuthenticate(t *testing.T) {
	svc := NewService(newMemRepo())

	plaintext, token, err := svc.Issue(context.Background(), "org-1", "ci-pipeline")
	require.NoError(t, err)
	assert.Contains(t, plaintext, token.ID+".")

	identity, err := svc.Authenticate(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, shared.Identity{OrgID: "org-1", ActorID: "token:" + token.ID}, identity)
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	svc := NewService(newMemRepo())

	_, token, err := svc.Issue(context.Background(), "org-1", "ci-pipeline")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token.ID+".wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateRejectsMalformed(t *testing.T) {
	svc := NewService(newMemRepo())

	for _, bearer := range []string{"", "no-dot", ".secret", "id."} {
		_, err := svc.Authenticate(context.Background(), bearer)
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials, bearer)
	}
}

func TestAuthenticateRejectsRevoked(t *testing.T) {
	svc := NewService(newMemRepo())

	plaintext, token, err := svc.Issue(context.Background(), "org-1", "ci-pipeline")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(context.Background(), "org-1", token.ID))

	_, err = svc.Authenticate(context.Background(), plaintext)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRevokeScopedToOrg(t *testing.T) {
	svc := NewService(newMemRepo())

	_, token, err := svc.Issue(context.Background(), "org-1", "ci-pipeline")
	require.NoError(t, err)

	err = svc.Revoke(context.Background(), "org-2", token.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}
