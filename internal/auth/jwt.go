package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jheun66/novel-mvp/server/domain"
	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
)

// DefaultTokenTTL is the lifetime of tokens issued by GenerateUserToken
const DefaultTokenTTL = 7 * 24 * time.Hour

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	UserID          string   `json:"user_id,omitempty"`
	Language        string   `json:"language,omitempty"`
	PreferredGenres []string `json:"preferred_genres,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 user tokens
type Verifier struct {
	secret []byte
	issuer string
}

// Ensure Verifier implements the IdentityVerifier interface
var _ repositories.IdentityVerifier = (*Verifier)(nil)

// NewVerifier creates a verifier for tokens signed with secret. When issuer
// is set, tokens from other issuers are rejected.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify validates a JWT token and returns the identity it names
func (v *Verifier) Verify(ctx context.Context, tokenString string) (repositories.Identity, error) {
	if err := ctx.Err(); err != nil {
		return repositories.Identity{}, err
	}
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return repositories.Identity{}, domain.ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return repositories.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !token.Valid {
		return repositories.Identity{}, domain.ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return repositories.Identity{}, fmt.Errorf("%w: token names no user", domain.ErrInvalidToken)
	}

	return repositories.Identity{
		UserID: userID,
		Preferences: entities.UserPreferences{
			Language:        claims.Language,
			PreferredGenres: claims.PreferredGenres,
		},
	}, nil
}

// GenerateUserToken generates a JWT token for user authentication
func (v *Verifier) GenerateUserToken(userID string, prefs entities.UserPreferences, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := &JWTClaims{
		UserID:          userID,
		Language:        prefs.Language,
		PreferredGenres: prefs.PreferredGenres,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
