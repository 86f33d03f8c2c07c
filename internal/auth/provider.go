package auth

import "context"

// SignInResult is the outcome of redeeming a one-time code. When the account
// has a second factor enabled the provider withholds the session blob and
// asks for the password instead.
type SignInResult struct {
	SessionBlob    string
	PasswordNeeded bool
}

// Provider is the external identity provider the session is established
// against. The concrete client (an MTProto user session in production) lives
// outside this module; implementations must return taxonomy errors
// (ErrRetryableAuth, RateLimitedError, ErrAuthFailed) so the state machine
// can surface them unchanged.
type Provider interface {
	// SendCode exchanges credentials for a challenge handle and triggers
	// delivery of a one-time code to the contact address.
	SendCode(ctx context.Context, identity, secret, contact string) (challenge string, err error)

	// SignIn redeems the one-time code against a challenge handle.
	SignIn(ctx context.Context, challenge, code string) (SignInResult, error)

	// CheckPassword completes the second factor.
	CheckPassword(ctx context.Context, challenge, password string) (sessionBlob string, err error)

	// Validate probes whether a persisted session blob is still usable.
	Validate(ctx context.Context, sessionBlob string) error
}
