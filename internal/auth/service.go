package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/apgms/apgms/internal/shared"
)

// Service wraps token issuing and verification rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates a bearer credential of the form "id.secret" and
// resolves the identity it grants.
func (s *Service) Authenticate(ctx context.Context, bearer string) (shared.Identity, error) {
	id, secret, ok := strings.Cut(bearer, ".")
	if !ok || id == "" || secret == "" {
		return shared.Identity{}, shared.ErrInvalidCredentials
	}
	token, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return shared.Identity{}, shared.ErrInvalidCredentials
	}
	if !token.IsActive {
		return shared.Identity{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return shared.Identity{}, shared.ErrInvalidCredentials
	}
	return shared.Identity{OrgID: token.OrgID, ActorID: "token:" + token.ID}, nil
}

// Issue creates a token for the org and returns the plaintext credential.
// The secret is only recoverable from this return value.
func (s *Service) Issue(ctx context.Context, orgID, name string) (string, Token, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", Token{}, err
	}
	secret := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", Token{}, err
	}
	token := Token{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		Name:       name,
		SecretHash: string(hash),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return "", Token{}, err
	}
	return token.ID + "." + secret, token, nil
}

// Revoke disables a token immediately.
func (s *Service) Revoke(ctx context.Context, orgID, id string) error {
	return s.repo.Revoke(ctx, orgID, id, time.Now().UTC())
}
