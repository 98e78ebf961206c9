package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/ports"
)

const (
	claimTypeAccess  = "access"
	claimTypeRefresh = "refresh"
)

// JWTIssuer implements HS256 signing and verification for both token classes.
// The two classes use independent secrets, so a refresh token can never
// verify against the access secret even under key confusion; the type claim
// guards the reverse direction within each class.
type JWTIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// JWTConfig holds the immutable signing configuration passed at construction.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// NewJWTIssuer builds an issuer from configured secrets.
func NewJWTIssuer(cfg JWTConfig) (*JWTIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh signing secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh signing secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &JWTIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

func (i *JWTIssuer) IssueAccessToken(userID uuid.UUID, email string) (string, error) {
	now := i.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Email: email,
		Type:  claimTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	})
	signed, err := token.SignedString(i.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (i *JWTIssuer) IssueRefreshToken(userID uuid.UUID) (string, error) {
	now := i.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Type: claimTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
	})
	signed, err := token.SignedString(i.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

func (i *JWTIssuer) IssuePair(userID uuid.UUID, email string) (ports.TokenPair, error) {
	access, err := i.IssueAccessToken(userID, email)
	if err != nil {
		return ports.TokenPair{}, err
	}
	refresh, err := i.IssueRefreshToken(userID)
	if err != nil {
		return ports.TokenPair{}, err
	}
	return ports.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(i.accessTTL.Seconds()),
	}, nil
}

func (i *JWTIssuer) VerifyAccess(token string) (ports.AccessClaims, error) {
	claims, err := i.parse(token, i.accessSecret, claimTypeAccess)
	if err != nil {
		return ports.AccessClaims{}, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ports.AccessClaims{}, domain.ErrInvalidToken
	}
	return ports.AccessClaims{UserID: userID, Email: claims.Email}, nil
}

func (i *JWTIssuer) VerifyRefresh(token string) (ports.RefreshClaims, error) {
	claims, err := i.parse(token, i.refreshSecret, claimTypeRefresh)
	if err != nil {
		return ports.RefreshClaims{}, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ports.RefreshClaims{}, domain.ErrInvalidToken
	}
	return ports.RefreshClaims{UserID: userID}, nil
}

// parse validates signature, expiry, and the type claim in one pass. Every
// failure collapses into domain.ErrInvalidToken so callers cannot tell an
// expired token apart from a forged or cross-class one.
func (i *JWTIssuer) parse(raw string, secret []byte, wantType string) (tokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return tokenClaims{}, domain.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return tokenClaims{}, domain.ErrInvalidToken
	}
	if claims.Type != wantType {
		return tokenClaims{}, domain.ErrInvalidToken
	}
	return *claims, nil
}
