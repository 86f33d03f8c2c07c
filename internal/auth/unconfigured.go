package auth

import (
	"context"

	"github.com/kurierhq/kurier/internal/errors"
)

// UnconfiguredProvider is the placeholder wired when no identity provider is
// configured. Every protocol step fails cleanly and the machine stays in
// Unauthenticated, so the daemon still serves moderation and digests.
type UnconfiguredProvider struct{}

func (UnconfiguredProvider) SendCode(ctx context.Context, identity, secret, contact string) (string, error) {
	return "", errors.Wrap(errors.ErrAuthFailed, "no identity provider configured")
}

func (UnconfiguredProvider) SignIn(ctx context.Context, challenge, code string) (SignInResult, error) {
	return SignInResult{}, errors.Wrap(errors.ErrAuthFailed, "no identity provider configured")
}

func (UnconfiguredProvider) CheckPassword(ctx context.Context, challenge, password string) (string, error) {
	return "", errors.Wrap(errors.ErrAuthFailed, "no identity provider configured")
}

func (UnconfiguredProvider) Validate(ctx context.Context, sessionBlob string) error {
	return errors.Wrap(errors.ErrAuthFailed, "no identity provider configured")
}
