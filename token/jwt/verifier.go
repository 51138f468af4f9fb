package jwt

import (
	"context"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/pkg/errors"
)

// PrimaryClaims are the claims carried by a primary login token. Older tokens
// carry the user in "userId" rather than "sub", both are accepted.
type PrimaryClaims struct {
	jwtlib.RegisteredClaims
	UserID string `json:"userId,omitempty"`
}

// Verifier checks HMAC signed primary login tokens and extracts the user identity.
// It never issues tokens; primary login lives in another service.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	nowTime  func() time.Time
}

// VerifierOption defines a function type to modify the Verifier instance.
type VerifierOption func(*Verifier)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.nowTime = nowFunc
	}
}

// NewVerifier creates a verifier for tokens signed with secret. Empty issuer or
// audience disables that check.
func NewVerifier(secret []byte, issuer, audience string, options ...VerifierOption) *Verifier {
	v := &Verifier{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Verify returns the user id the token was issued to, or ErrUnauthorized.
func (v *Verifier) Verify(_ context.Context, rawToken string) (string, error) {
	if strings.TrimSpace(rawToken) == "" {
		return "", errors.Wrap(apperrors.ErrUnauthorized, "[Verifier Verify] empty token")
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(v.nowTime),
	}
	if v.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwtlib.WithAudience(v.audience))
	}

	claims := &PrimaryClaims{}
	token, err := jwtlib.ParseWithClaims(rawToken, claims, func(*jwtlib.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", errors.Wrapf(apperrors.ErrUnauthorized, "[Verifier Verify] %v", err)
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" {
		return "", errors.Wrap(apperrors.ErrUnauthorized, "[Verifier Verify] token has no subject")
	}
	return userID, nil
}
