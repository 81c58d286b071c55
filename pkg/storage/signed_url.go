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
	ErrTokenMalformed = errors.New("signed url: malformed token")
	ErrTokenSignature = errors.New("signed url: invalid signature")
	ErrTokenExpired   = errors.New("signed url: token expired")
)

// SignedURLSigner creates and validates download tokens binding a subject
// (the FIR id) to an object key for a limited time.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// SignedToken is the decoded content of a valid token.
type SignedToken struct {
	Subject   string
	Key       string
	ExpiresAt time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token of the form subject.expiry.key.signature.
func (s *SignedURLSigner) Generate(subject, key string) (string, time.Time, error) {
	if subject == "" || key == "" {
		return "", time.Time{}, fmt.Errorf("subject and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	encodedSubject := base64.RawURLEncoding.EncodeToString([]byte(subject))
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(key))
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	signature := s.sign(encodedSubject, exp, encodedKey)
	return strings.Join([]string{encodedSubject, exp, encodedKey, signature}, "."), expiresAt, nil
}

// Parse validates a token and returns the embedded subject and key.
func (s *SignedURLSigner) Parse(token string) (SignedToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return SignedToken{}, ErrTokenMalformed
	}
	encodedSubject, exp, encodedKey, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(encodedSubject, exp, encodedKey)), []byte(signature)) {
		return SignedToken{}, ErrTokenSignature
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return SignedToken{}, ErrTokenMalformed
	}
	subject, err := base64.RawURLEncoding.DecodeString(encodedSubject)
	if err != nil {
		return SignedToken{}, ErrTokenMalformed
	}
	key, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return SignedToken{}, ErrTokenMalformed
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return SignedToken{}, ErrTokenExpired
	}
	return SignedToken{Subject: string(subject), Key: string(key), ExpiresAt: expiresAt}, nil
}

func (s *SignedURLSigner) sign(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
