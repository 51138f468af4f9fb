package oidc

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-verification-handoff/internal/errors"
	"github.com/pkg/errors"
)

// Verifier accepts OIDC ID tokens from an external identity provider as the
// primary login credential.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the provider at issuerURL and verifies tokens issued for clientID.
func NewVerifier(ctx context.Context, issuerURL, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[oidc NewVerifier] failed to create OIDC provider")
	}
	return &Verifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// NewVerifierFromKeySet builds a verifier without discovery, for fixed keys.
func NewVerifierFromKeySet(issuerURL, clientID string, keySet oidc.KeySet) *Verifier {
	return &Verifier{
		verifier: oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// Verify returns the token subject, or ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", errors.Wrapf(apperrors.ErrUnauthorized, "[oidc Verify] %v", err)
	}
	if idToken.Subject == "" {
		return "", errors.Wrap(apperrors.ErrUnauthorized, "[oidc Verify] token has no subject")
	}
	return idToken.Subject, nil
}
