package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken marks malformed or tampered download tokens.
	ErrInvalidToken = errors.New("invalid document token")
	// ErrExpiredToken marks tokens past their expiry.
	ErrExpiredToken = errors.New("document token expired")
)

// DocumentClaims is the content of a download token.
type DocumentClaims struct {
	Subject   string
	Ref       string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates signed document download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a token granting access to ref on behalf of subject
// (typically "<advanceID>:<kind>").
func (s *SignedURLSigner) Generate(subject, ref string) (string, time.Time, error) {
	if subject == "" || ref == "" {
		return "", time.Time{}, fmt.Errorf("subject and ref required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	encodedSubject := base64.RawURLEncoding.EncodeToString([]byte(subject))
	encodedRef := base64.RawURLEncoding.EncodeToString([]byte(ref))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	signature := s.sign(encodedSubject, ts, encodedRef)
	return strings.Join([]string{encodedSubject, ts, encodedRef, signature}, "."), expiresAt, nil
}

// Parse validates a token and returns its claims.
func (s *SignedURLSigner) Parse(token string) (DocumentClaims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 4 {
		return DocumentClaims{}, ErrInvalidToken
	}
	encodedSubject, ts, encodedRef, signature := parts[0], parts[1], parts[2], parts[3]

	expected := s.sign(encodedSubject, ts, encodedRef)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return DocumentClaims{}, ErrInvalidToken
	}
	subject, err := base64.RawURLEncoding.DecodeString(encodedSubject)
	if err != nil {
		return DocumentClaims{}, ErrInvalidToken
	}
	ref, err := base64.RawURLEncoding.DecodeString(encodedRef)
	if err != nil {
		return DocumentClaims{}, ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return DocumentClaims{}, ErrInvalidToken
	}
	claims := DocumentClaims{Subject: string(subject), Ref: string(ref), ExpiresAt: time.Unix(expUnix, 0)}
	if s.now().After(claims.ExpiresAt) {
		return claims, ErrExpiredToken
	}
	return claims, nil
}

func (s *SignedURLSigner) sign(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
