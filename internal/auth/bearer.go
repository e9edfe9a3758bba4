package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultIssuer = "appcatalog"

// BearerCodec signs access tokens as HS256 JWTs for collaborators that carry
// them as opaque bearer strings. The jti claim is the access token id.
type BearerCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewBearerCodec builds a codec. The secret must be non-empty.
func NewBearerCodec(secret, issuer string, now func() time.Time) (*BearerCodec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: bearer secret is required")
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	if now == nil {
		now = time.Now
	}
	return &BearerCodec{secret: []byte(secret), issuer: issuer, now: now}, nil
}

// Encode signs tok.
func (c *BearerCodec) Encode(tok AccessToken) (string, error) {
	if tok.ID == "" || tok.UserID == "" {
		return "", ErrInvalidToken
	}
	claims := jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   tok.UserID,
		ID:        tok.ID,
		IssuedAt:  jwt.NewNumericDate(tok.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Decode verifies raw and returns the access token id it carries.
func (c *BearerCodec) Decode(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}
