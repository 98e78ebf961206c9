package ports

import (
	"context"

	"github.com/google/uuid"
)

// PasswordHasher performs one-way password hashing and verification.
// Compare returns domain.ErrInvalidCredentials when the password does not
// match the hash. Both operations are CPU-bound; implementations must bound
// their own concurrency so a slow hash cannot stall the request-acceptance
// path, and must honor ctx cancellation while queueing.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Compare(ctx context.Context, hash, password string) error
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID uuid.UUID
	Email  string
}

// RefreshClaims is the verified content of a refresh token.
type RefreshClaims struct {
	UserID uuid.UUID
}

// TokenPair is one access/refresh issuance. ExpiresIn reports the access
// token lifetime in seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// TokenIssuer signs and verifies the two token classes. Access and refresh
// tokens are signed with independent secrets and tagged with a type claim;
// a token presented against the wrong verification context fails with
// domain.ErrInvalidToken even when correctly signed. Pure crypto, no state.
type TokenIssuer interface {
	IssueAccessToken(userID uuid.UUID, email string) (string, error)
	IssueRefreshToken(userID uuid.UUID) (string, error)
	IssuePair(userID uuid.UUID, email string) (TokenPair, error)
	VerifyAccess(token string) (AccessClaims, error)
	VerifyRefresh(token string) (RefreshClaims, error)
}
