// Package auth issues and verifies API tokens. A token is "id.secret";
// only the bcrypt hash of the secret is stored.
package auth

import "time"

// Token represents an issued API credential bound to one org.
type Token struct {
	ID         string
	OrgID      string
	Name       string
	SecretHash string
	IsActive   bool
	CreatedAt  time.Time
	RevokedAt  *time.Time
}
