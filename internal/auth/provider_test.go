package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/docstore/sqlite"
	"github.com/sakif/campus-link/internal/model"
)

// =========================================================================
// FAKES
// =========================================================================

type sentMail struct {
	email string
	link  string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *captureMailer) SendVerification(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{email, link})
	return nil
}

func (m *captureMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no verification mail was sent")
	return m.sent[len(m.sent)-1]
}

type fakeFederated struct {
	user *GoogleUser
	err  error
}

func (f *fakeFederated) Configured() bool            { return true }
func (f *fakeFederated) AuthURL(state string) string { return "https://accounts.example/auth?state=" + state }
func (f *fakeFederated) Exchange(context.Context, string) (*GoogleUser, error) {
	return f.user, f.err
}

type event struct {
	sessionID string
	identity  *model.Identity
}

// recorder collects notifications.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) listen(_ context.Context, sessionID string, identity *model.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{sessionID, identity})
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

type testProvider struct {
	*LocalProvider
	mailer    *captureMailer
	federated *fakeFederated
	events    *recorder
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens, err := NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)

	mailer := &captureMailer{}
	federated := &fakeFederated{}
	p := NewLocalProvider(LocalProviderConfig{
		Store:     store,
		Tokens:    tokens,
		Passwords: NewPasswordServiceForTest(4),
		Federated: federated,
		Mailer:    mailer,
		PublicURL: "http://localhost:8080/",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	rec := &recorder{}
	unsubscribe := p.Subscribe(rec.listen)
	t.Cleanup(unsubscribe)

	return &testProvider{LocalProvider: p, mailer: mailer, federated: federated, events: rec}
}

// =========================================================================
// SIGN-UP / SIGN-IN
// =========================================================================

func TestSignUp_CreatesAccountAndSession(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	sess, err := p.SignUp(ctx, "  Asha@Campus.edu ", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "asha@campus.edu", sess.Identity.Email)
	assert.False(t, sess.Identity.EmailVerified)

	events := p.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, sess.ID, events[0].sessionID)
	require.NotNil(t, events[0].identity)
	assert.Equal(t, sess.Identity.ID, events[0].identity.ID)

	current, err := p.CurrentSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Identity.ID, current.Identity.ID)
}

func TestSignUp_Validation(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "not-an-email", "hunter22")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = p.SignUp(ctx, "a@campus.edu", "short")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	assert.Empty(t, p.events.all(), "failed sign-ups must not notify")
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "a@campus.edu", "hunter22")
	require.NoError(t, err)

	_, err = p.SignUp(ctx, "A@campus.edu", "another-pass")
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestSignIn(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	created, err := p.SignUp(ctx, "a@campus.edu", "hunter22")
	require.NoError(t, err)

	sess, err := p.SignIn(ctx, "A@Campus.edu", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created.Identity.ID, sess.Identity.ID)
	assert.NotEqual(t, created.ID, sess.ID, "each sign-in is a new client session")

	_, err = p.SignIn(ctx, "a@campus.edu", "wrong-pass")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))

	_, err = p.SignIn(ctx, "nobody@campus.edu", "hunter22")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

// =========================================================================
// VERIFICATION
// =========================================================================

func TestVerification_RoundTrip(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	sess, err := p.SignUp(ctx, "a@campus.edu", "hunter22")
	require.NoError(t, err)
	require.NoError(t, p.SendVerification(ctx, sess.Identity.ID))

	mail := p.mailer.last(t)
	assert.Equal(t, "a@campus.edu", mail.email)

	link, err := url.Parse(mail.link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/verify", link.Path)
	assert.Equal(t, "localhost:8080", link.Host)
	token := link.Query().Get("token")

	identity, err := p.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, identity.EmailVerified)

	// Live sessions see the change without signing in again.
	current, err := p.CurrentSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.True(t, current.Identity.EmailVerified)

	// Tokens are single use.
	_, err = p.VerifyEmail(ctx, token)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestVerification_Expired(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	sess, err := p.SignUp(ctx, "a@campus.edu", "hunter22")
	require.NoError(t, err)
	require.NoError(t, p.SendVerification(ctx, sess.Identity.ID))

	link, _ := url.Parse(p.mailer.last(t).link)
	p.now = func() time.Time { return time.Now().Add(verificationLifetime + time.Hour) }

	_, err = p.VerifyEmail(ctx, link.Query().Get("token"))
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestVerifyEmail_UnknownToken(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.VerifyEmail(context.Background(), "made-up")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

// =========================================================================
// FEDERATED
// =========================================================================

func TestSignInFederated_CreatesThenReuses(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	p.federated.user = &GoogleUser{ID: "g-1", Email: "asha@campus.edu", VerifiedEmail: true, Name: "Asha Rao", Picture: "https://img/a.png"}

	first, err := p.SignInFederated(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", first.Identity.DisplayName)
	assert.Equal(t, "https://img/a.png", first.Identity.AvatarURL)
	assert.True(t, first.Identity.EmailVerified)

	second, err := p.SignInFederated(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, first.Identity.ID, second.Identity.ID)
}

func TestSignInFederated_VerifiedEmailTakesOverUnverifiedAccount(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	// Someone registers the address with a password of their choosing.
	squatter, err := p.SignUp(ctx, "asha@campus.edu", "hunter22")
	require.NoError(t, err)

	p.federated.user = &GoogleUser{ID: "g-1", Email: "asha@campus.edu", VerifiedEmail: true, Name: "Asha"}
	sess, err := p.SignInFederated(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, squatter.Identity.ID, sess.Identity.ID)
	assert.True(t, sess.Identity.EmailVerified)

	_, err = p.SignIn(ctx, "asha@campus.edu", "hunter22")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated), "the unverified password must no longer sign in")

	_, err = p.CurrentSession(ctx, squatter.Token)
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated), "sessions opened with the password must end")

	_, err = p.CurrentSession(ctx, sess.Token)
	assert.NoError(t, err)
}

func TestSignInFederated_VerifiedEmailKeepsVerifiedPassword(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	created, err := p.SignUp(ctx, "asha@campus.edu", "hunter22")
	require.NoError(t, err)
	require.NoError(t, p.SendVerification(ctx, created.Identity.ID))
	u, err := url.Parse(p.mailer.last(t).link)
	require.NoError(t, err)
	_, err = p.VerifyEmail(ctx, u.Query().Get("token"))
	require.NoError(t, err)

	p.federated.user = &GoogleUser{ID: "g-1", Email: "asha@campus.edu", VerifiedEmail: true, Name: "Asha"}
	sess, err := p.SignInFederated(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, created.Identity.ID, sess.Identity.ID)

	_, err = p.SignIn(ctx, "asha@campus.edu", "hunter22")
	assert.NoError(t, err)
}

func TestSignInFederated_UnverifiedEmailDoesNotLink(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "asha@campus.edu", "hunter22")
	require.NoError(t, err)

	p.federated.user = &GoogleUser{ID: "g-1", Email: "asha@campus.edu", VerifiedEmail: false}
	_, err = p.SignInFederated(ctx, "code")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))

	// The password account is untouched.
	_, err = p.SignIn(ctx, "asha@campus.edu", "hunter22")
	assert.NoError(t, err)
}

func TestSignInFederated_ExchangeFailure(t *testing.T) {
	p := newTestProvider(t)
	p.federated.err = errors.New("popup closed")

	_, err := p.SignInFederated(context.Background(), "code")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

func TestFederatedAuthURL(t *testing.T) {
	p := newTestProvider(t)
	assert.Contains(t, p.FederatedAuthURL("abc"), "state=abc")

	p.LocalProvider.federated = nil
	assert.Empty(t, p.FederatedAuthURL("abc"))
}

// =========================================================================
// SESSIONS
// =========================================================================

func TestSignOut_EndsSessionAndNotifiesNil(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	sess, err := p.SignUp(ctx, "a@campus.edu", "hunter22")
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx, sess.ID))

	_, err = p.CurrentSession(ctx, sess.Token)
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated), "a signed-out token must stop working")

	events := p.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, sess.ID, events[1].sessionID)
	assert.Nil(t, events[1].identity)

	// A second sign-out is quiet.
	require.NoError(t, p.SignOut(ctx, sess.ID))
	assert.Len(t, p.events.all(), 2)
}

func TestRefresh_ReissuesTokenAndNotifies(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	sess, err := p.SignUp(ctx, "a@campus.edu", "hunter22")
	require.NoError(t, err)

	refreshed, err := p.Refresh(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, refreshed.ID)
	assert.NotEqual(t, sess.Token, refreshed.Token)

	_, err = p.CurrentSession(ctx, refreshed.Token)
	assert.NoError(t, err)

	events := p.events.all()
	require.Len(t, events, 2)
	require.NotNil(t, events[1].identity)
	assert.Equal(t, sess.Identity.ID, events[1].identity.ID)

	_, err = p.Refresh(ctx, "unknown-session")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

func TestCurrentSession_PrunesExpiredSessions(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	sess, err := p.SignUp(ctx, "a@campus.edu", "hunter22")
	require.NoError(t, err)

	p.now = func() time.Time { return sess.ExpiresAt.Add(time.Minute) }

	// Any lookup sweeps the table, even one for an unrelated token.
	_, err = p.CurrentSession(ctx, "not-a-jwt")
	require.Error(t, err)

	events := p.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, sess.ID, events[1].sessionID)
	assert.Nil(t, events[1].identity)

	p.mu.RLock()
	assert.Empty(t, p.sessions)
	p.mu.RUnlock()
}

func TestCurrentSession_RejectsGarbage(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.CurrentSession(context.Background(), "not-a-jwt")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	other := &recorder{}
	unsubscribe := p.Subscribe(other.listen)

	_, err := p.SignUp(ctx, "a@campus.edu", "hunter22")
	require.NoError(t, err)
	assert.Len(t, other.all(), 1)

	unsubscribe()
	unsubscribe() // idempotent

	_, err = p.SignIn(ctx, "a@campus.edu", "hunter22")
	require.NoError(t, err)
	assert.Len(t, other.all(), 1)
	assert.Len(t, p.events.all(), 2)
}
