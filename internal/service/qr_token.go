package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// QRSigner issues and verifies the short-lived signed payloads embedded in
// pickup QR codes. The payload is an HS256 JWT carrying the order id, so a
// screenshot of an old QR stops working once it expires.
type QRSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewQRSigner(secret []byte, ttl time.Duration) *QRSigner {
	return &QRSigner{secret: secret, ttl: ttl}
}

func (q *QRSigner) TTL() time.Duration {
	return q.ttl
}

func (q *QRSigner) Sign(orderID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "kindplate",
		Subject:   orderID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(q.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(q.secret)
	if err != nil {
		return "", fmt.Errorf("sign qr payload: %w", err)
	}
	return signed, nil
}

func (q *QRSigner) Parse(payload string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(payload, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) { return q.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer("kindplate"),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrQRExpired
		}
		return uuid.Nil, ErrCodeNotFound
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, ErrCodeNotFound
	}

	orderID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrCodeNotFound
	}

	return orderID, nil
}

// IsQRPayload distinguishes a scanned QR token from a typed pickup code.
func IsQRPayload(code string) bool {
	return strings.Count(code, ".") == 2
}
