package main

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Principal is the authenticated identity derived from a verified token.
// It is rebuilt per request and never persisted.
type Principal struct {
	UserID int64
	Role   string
}

// Claims is the only JWT claims shape this service issues or accepts.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// Token verification failures. Handlers collapse all three to a single
// 401 so callers cannot probe which stage rejected the token, but the
// distinction is kept for logging and tests.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
)

// TokenService issues and verifies stateless HS256 bearer tokens. The
// secret is injected at construction; there is no server-side session
// state, so validity is a function of signature and expiry alone.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	return &TokenService{secret: secret, ttl: ttl}
}

// Issue signs a token for the given user valid for the configured TTL.
func (s *TokenService) Issue(userID int64, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: userID,
		Role:   role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token and returns the Principal it
// encodes. Any validation failure is reported as one of the sentinel
// errors above; nothing ambiguous ever verifies.
func (s *TokenService) Verify(tokenString string) (Principal, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Principal{}, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return Principal{}, ErrTokenExpired
		default:
			// signature mismatch, unexpected alg, anything else
			return Principal{}, ErrTokenSignature
		}
	}
	if !token.Valid || claims.UserID == 0 {
		return Principal{}, ErrTokenMalformed
	}
	return Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

// comparePassword returns false for a malformed digest rather than
// surfacing the error; credential checks fail closed.
func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// canModify is the single ownership predicate used by every mutating
// route: the resource owner may act, as may an admin.
func canModify(p Principal, ownerID int64) bool {
	return p.UserID == ownerID || p.Role == RoleAdmin
}
