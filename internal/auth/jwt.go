// Package auth validates the bearer tokens that identify studio users.
// Accounts are managed elsewhere; tokens only need to carry a user id.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// clockSkew is tolerated on exp, nbf and iat.
const clockSkew = 30 * time.Second

// Claims identifies the studio owner.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and checks HS256 tokens.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	parser *jwt.Parser
}

// Option configures a JWTService.
type Option func(*JWTService)

// WithIssuer stamps iss on issued tokens and requires it on validated ones.
// An empty issuer is ignored.
func WithIssuer(iss string) Option {
	return func(s *JWTService) { s.issuer = iss }
}

func NewJWTService(secret string, expireHours int, opts ...Option) *JWTService {
	s := &JWTService{secret: []byte(secret), ttl: time.Duration(expireHours) * time.Hour}
	for _, o := range opts {
		o(s)
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}
	s.parser = jwt.NewParser(parserOpts...)
	return s
}

// Generate issues a token for the user. Used by tests and local tooling.
func (s *JWTService) Generate(userID uuid.UUID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate returns the claims of a well-formed, unexpired token naming a
// user. Tokens without user_id fall back to a UUID subject.
func (s *JWTService) Validate(raw string) (*Claims, error) {
	var claims Claims
	if _, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return s.secret, nil }); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == uuid.Nil && claims.Subject != "" {
		if id, err := uuid.Parse(claims.Subject); err == nil {
			claims.UserID = id
		}
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: no user", ErrInvalidToken)
	}
	return &claims, nil
}

// ValidateUserID adapts Validate for the WebSocket endpoint.
func (s *JWTService) ValidateUserID(raw string) (string, error) {
	claims, err := s.Validate(raw)
	if err != nil {
		return "", err
	}
	return claims.UserID.String(), nil
}
