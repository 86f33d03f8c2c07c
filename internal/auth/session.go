package auth

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kurierhq/kurier/internal/errors"

	"github.com/natefinch/atomic"
)

// State of the session-establishment machine. Authenticated is terminal:
// after a restart the persisted blob is loaded instead of re-driving the
// protocol.
type State string

const (
	StateUnauthenticated   State = "unauthenticated"
	StateCodeRequested     State = "code_requested"
	StatePasswordRequested State = "password_requested"
	StateAuthenticated     State = "authenticated"
)

// Session is the durable token produced on reaching Authenticated.
type Session struct {
	Blob      string    `json:"blob"`
	Contact   string    `json:"contact"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is the side-effect-free view reported to callers.
type Status struct {
	State         State  `json:"state"`
	MaskedContact string `json:"masked_contact,omitempty"`
}

// Manager drives session establishment with the identity provider. It is a
// per-process singleton; all transitions are serialized so two callers can
// never race to redeem the same one-time code.
type Manager struct {
	mu          sync.Mutex
	provider    Provider
	sessionPath string
	timeout     time.Duration

	state     State
	identity  string
	secret    string
	contact   string
	challenge string
	session   *Session
}

func NewManager(provider Provider, sessionPath string, timeout time.Duration) *Manager {
	return &Manager{
		provider:    provider,
		sessionPath: sessionPath,
		timeout:     timeout,
		state:       StateUnauthenticated,
	}
}

// LoadPersisted initializes the machine from a previously persisted session.
// A missing file is a clean cold start. A corrupt blob, or one the provider
// explicitly rejects, forces a reset rather than silently operating on a
// broken session. A transient validity-check failure (timeout, provider
// unreachable) keeps the blob and the machine stays Unauthenticated; the
// caller may retry.
func (m *Manager) LoadPersisted(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.sessionPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.StorageUnavailable(err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil || sess.Blob == "" {
		slog.Warn("Persisted session is corrupt, resetting", "path", m.sessionPath)
		return m.resetLocked()
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.provider.Validate(checkCtx, sess.Blob); err != nil {
		if errors.IsCategory(err, errors.ErrAuthFailed) {
			slog.Warn("Persisted session rejected by provider, resetting", "error", err)
			return m.resetLocked()
		}
		// An unreachable provider proves nothing about the blob. It stays on
		// disk and the next start retries the validity check.
		slog.Warn("Session validity check failed, keeping persisted session", "error", err)
		return mapAuthErr(err, errors.ErrRetryableAuth)
	}

	m.session = &sess
	m.contact = sess.Contact
	m.state = StateAuthenticated
	slog.Info("Auth session restored", "contact", maskContact(sess.Contact))
	return nil
}

// Start begins the credential exchange. While Authenticated it is a probe,
// not an error: the current status comes back unchanged.
func (m *Manager) Start(ctx context.Context, identity, secret, contact string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAuthenticated {
		return m.statusLocked(), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	challenge, err := m.provider.SendCode(callCtx, identity, secret, contact)
	if err != nil {
		m.state = StateUnauthenticated
		return m.statusLocked(), mapAuthErr(err, errors.ErrAuthFailed)
	}

	m.identity = identity
	m.secret = secret
	m.contact = contact
	m.challenge = challenge
	m.state = StateCodeRequested
	slog.Info("Auth code requested", "contact", maskContact(contact))
	return m.statusLocked(), nil
}

// SubmitCode redeems the one-time code against the stored challenge handle.
func (m *Manager) SubmitCode(ctx context.Context, code string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAuthenticated {
		return m.statusLocked(), nil
	}
	if m.state != StateCodeRequested {
		return m.statusLocked(), errors.InvalidTransition("no code has been requested")
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	result, err := m.provider.SignIn(callCtx, m.challenge, code)
	if err != nil {
		// Invalid or expired code leaves the machine where it is; the
		// caller may resubmit. Rate limits pass through untouched so the
		// caller can back off instead of busy-retrying.
		return m.statusLocked(), mapAuthErr(err, errors.ErrRetryableAuth)
	}

	if result.PasswordNeeded {
		m.state = StatePasswordRequested
		slog.Info("Auth second factor required", "contact", maskContact(m.contact))
		return m.statusLocked(), nil
	}

	return m.completeLocked(result.SessionBlob)
}

// SubmitPassword completes the second factor.
func (m *Manager) SubmitPassword(ctx context.Context, password string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAuthenticated {
		return m.statusLocked(), nil
	}
	if m.state != StatePasswordRequested {
		return m.statusLocked(), errors.InvalidTransition("no password has been requested")
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	blob, err := m.provider.CheckPassword(callCtx, m.challenge, password)
	if err != nil {
		return m.statusLocked(), mapAuthErr(err, errors.ErrRetryableAuth)
	}

	return m.completeLocked(blob)
}

// Status is idempotent and side-effect-free.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Authenticated reports whether channel reads may proceed.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateAuthenticated
}

// Reset drops the persisted session and returns to Unauthenticated.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetLocked()
}

// completeLocked persists the session blob before the transition to
// Authenticated is observable; success is never reported ahead of the write.
func (m *Manager) completeLocked(blob string) (Status, error) {
	sess := &Session{
		Blob:      blob,
		Contact:   m.contact,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.persist(sess); err != nil {
		return m.statusLocked(), err
	}

	m.session = sess
	m.challenge = ""
	m.secret = ""
	m.state = StateAuthenticated
	slog.Info("Auth session established", "contact", maskContact(m.contact))
	return m.statusLocked(), nil
}

func (m *Manager) persist(sess *Session) error {
	if err := os.MkdirAll(filepath.Dir(m.sessionPath), 0700); err != nil {
		return errors.StorageUnavailable(err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return errors.StorageUnavailable(err)
	}
	if err := atomic.WriteFile(m.sessionPath, bytes.NewReader(data)); err != nil {
		return errors.StorageUnavailable(err)
	}
	if err := os.Chmod(m.sessionPath, 0600); err != nil {
		return errors.StorageUnavailable(err)
	}
	return nil
}

func (m *Manager) resetLocked() error {
	if err := os.Remove(m.sessionPath); err != nil && !os.IsNotExist(err) {
		return errors.StorageUnavailable(err)
	}
	m.session = nil
	m.challenge = ""
	m.identity = ""
	m.secret = ""
	m.state = StateUnauthenticated
	return nil
}

func (m *Manager) statusLocked() Status {
	return Status{
		State:         m.state,
		MaskedContact: maskContact(m.contact),
	}
}

// mapAuthErr keeps taxonomy errors intact, converts deadline expiry to the
// Timeout condition, and classifies anything else under fallback.
func mapAuthErr(err error, fallback error) error {
	switch {
	case stderrors.Is(err, context.Canceled):
		return err
	case stderrors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("provider call: %w", errors.ErrTimeout)
	case stderrors.Is(err, errors.ErrRetryableAuth),
		stderrors.Is(err, errors.ErrAuthFailed),
		stderrors.Is(err, errors.ErrTimeout):
		return err
	default:
		return fmt.Errorf("%v: %w", err, fallback)
	}
}

func maskContact(contact string) string {
	c := strings.TrimSpace(contact)
	if c == "" {
		return ""
	}
	if len(c) <= 4 {
		return "****"
	}
	return c[:2] + strings.Repeat("*", len(c)-4) + c[len(c)-2:]
}
