package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/docstore"
	"github.com/sakif/campus-link/internal/model"
)

// Collections the provider keeps in the document store.
const (
	AccountsCollection      = "accounts"
	VerificationsCollection = "verifications"
)

const verificationLifetime = 24 * time.Hour

// Listener receives session changes. identity is nil when the session ended.
// Listeners run synchronously on the goroutine that caused the change and
// must not call back into the provider.
type Listener func(ctx context.Context, sessionID string, identity *model.Identity)

// Session is one signed-in client.
type Session struct {
	ID        string
	Token     string
	ExpiresAt time.Time
	Identity  *model.Identity
}

// Provider is everything the application asks of its auth provider.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SendVerification(ctx context.Context, identityID string) error
	VerifyEmail(ctx context.Context, token string) (*model.Identity, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// FederatedAuthURL returns "" when federated sign-in is not configured.
	FederatedAuthURL(state string) string
	SignInFederated(ctx context.Context, code string) (*Session, error)
	SignOut(ctx context.Context, sessionID string) error
	CurrentSession(ctx context.Context, token string) (*Session, error)
	Refresh(ctx context.Context, sessionID string) (*Session, error)
	Subscribe(fn Listener) (unsubscribe func())
}

// Federated is the third-party identity source behind SignInFederated.
// *GoogleOAuth implements it.
type Federated interface {
	Configured() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*GoogleUser, error)
}

// Mailer delivers verification links.
type Mailer interface {
	SendVerification(ctx context.Context, email, link string) error
}

// LogMailer writes verification links to the log instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendVerification(ctx context.Context, email, link string) error {
	m.Logger.InfoContext(ctx, "verification email",
		slog.String("to", email),
		slog.String("link", link),
	)
	return nil
}

var _ Provider = (*LocalProvider)(nil)

// LocalProvider is the Provider shipped with the application. Accounts live
// in the document store; client sessions live only in this process.
type LocalProvider struct {
	store     docstore.Store
	tokens    *TokenService
	passwords *PasswordService
	federated Federated
	mailer    Mailer
	publicURL string
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time

	mu        sync.RWMutex
	sessions  map[string]*sessionEntry
	listeners map[uint64]Listener
	nextID    uint64
}

type sessionEntry struct {
	identity  model.Identity
	expiresAt time.Time
}

// LocalProviderConfig groups the collaborators of NewLocalProvider.
type LocalProviderConfig struct {
	Store     docstore.Store
	Tokens    *TokenService
	Passwords *PasswordService
	Federated Federated // optional
	Mailer    Mailer
	PublicURL string
	Logger    *slog.Logger
}

func NewLocalProvider(cfg LocalProviderConfig) *LocalProvider {
	return &LocalProvider{
		store:     cfg.Store,
		tokens:    cfg.Tokens,
		passwords: cfg.Passwords,
		federated: cfg.Federated,
		mailer:    cfg.Mailer,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		logger:    cfg.Logger,
		validate:  validator.New(),
		now:       time.Now,
		sessions:  make(map[string]*sessionEntry),
		listeners: make(map[uint64]Listener),
	}
}

// =========================================================================
// SIGN-UP AND VERIFICATION
// =========================================================================

// SignUp creates a password account and signs it in.
func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = normaliseEmail(email)
	if err := p.validate.Var(email, "required,email"); err != nil {
		return nil, apperror.ValidationFailed("email", "please enter a valid email address")
	}
	if err := p.passwords.CheckStrength(password); err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	if _, err := p.findAccount(ctx, "email", email); err == nil {
		return nil, &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: "an account with this email already exists",
			Field:   "email",
		}
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	hash, err := p.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	acct := account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := p.saveAccount(ctx, acct); err != nil {
		return nil, err
	}

	p.logger.Info("account created", slog.String("account_id", acct.ID))
	return p.startSession(ctx, acct)
}

// SendVerification mails a one-time verification link to the account's
// address. Already verified accounts get nothing.
func (p *LocalProvider) SendVerification(ctx context.Context, identityID string) error {
	acct, err := p.loadAccount(ctx, identityID)
	if err != nil {
		return err
	}
	if acct.EmailVerified {
		return nil
	}

	token := uuid.NewString()
	err = p.store.Set(ctx, VerificationsCollection, token, docstore.Document{
		"accountId": acct.ID,
		"expiresAt": p.now().Add(verificationLifetime).UTC(),
	})
	if err != nil {
		return apperror.Unavailable("could not send the verification email", err)
	}

	link := p.publicURL + "/auth/verify?token=" + url.QueryEscape(token)
	if err := p.mailer.SendVerification(ctx, acct.Email, link); err != nil {
		return apperror.Unavailable("could not send the verification email", err)
	}
	return nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (p *LocalProvider) VerifyEmail(ctx context.Context, token string) (*model.Identity, error) {
	invalid := apperror.ValidationFailed("token", "this verification link is invalid or has expired")

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, invalid
	}

	snap, err := p.store.Get(ctx, VerificationsCollection, token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, apperror.Unavailable("could not verify the email address", err)
	}

	expires, _ := snap.Data["expiresAt"].(time.Time)
	if p.now().After(expires) {
		_ = p.store.Delete(ctx, VerificationsCollection, token)
		return nil, invalid
	}

	accountID, _ := snap.Data["accountId"].(string)
	acct, err := p.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	acct.EmailVerified = true
	if err := p.saveAccount(ctx, acct); err != nil {
		return nil, err
	}
	if err := p.store.Delete(ctx, VerificationsCollection, token); err != nil {
		p.logger.Warn("failed to delete used verification token", slog.String("error", err.Error()))
	}

	identity := acct.identity()

	p.mu.Lock()
	for _, e := range p.sessions {
		if e.identity.ID == acct.ID {
			e.identity = identity
		}
	}
	p.mu.Unlock()

	p.logger.Info("email verified", slog.String("account_id", acct.ID))
	return &identity, nil
}

// =========================================================================
// SIGN-IN / SIGN-OUT
// =========================================================================

// SignIn checks an email and password. Unknown email and wrong password
// produce the same error.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	bad := apperror.Unauthenticated("invalid email or password")

	acct, err := p.findAccount(ctx, "email", normaliseEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, bad
		}
		return nil, err
	}

	if acct.PasswordHash == "" {
		return nil, apperror.Unauthenticated("this account signs in with Google")
	}
	if err := p.passwords.Verify(acct.PasswordHash, password); err != nil {
		return nil, bad
	}

	return p.startSession(ctx, acct)
}

func (p *LocalProvider) FederatedAuthURL(state string) string {
	if p.federated == nil || !p.federated.Configured() {
		return ""
	}
	return p.federated.AuthURL(state)
}

// SignInFederated completes the Google flow. A Google account is matched by
// its Google id first, then linked to an existing account with the same
// email, and otherwise created.
//
// Linking by email requires Google to have verified the address. Linking
// to an account whose email was never verified drops its password and ends
// its sessions.
func (p *LocalProvider) SignInFederated(ctx context.Context, code string) (*Session, error) {
	if p.federated == nil || !p.federated.Configured() {
		return nil, apperror.Unauthenticated("Google sign-in is not available")
	}

	user, err := p.federated.Exchange(ctx, code)
	if err != nil {
		p.logger.Warn("google exchange failed", slog.String("error", err.Error()))
		return nil, apperror.Unauthenticated("Google sign-in failed, please try again")
	}

	acct, err := p.findAccount(ctx, "googleId", user.ID)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		acct, err = p.findAccount(ctx, "email", normaliseEmail(user.Email))
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			acct = account{ID: uuid.NewString(), Email: normaliseEmail(user.Email)}
		case err != nil:
			return nil, err
		case !user.VerifiedEmail:
			p.logger.Warn("refusing to link unverified google email",
				slog.String("account_id", acct.ID),
				slog.String("google_id", user.ID),
			)
			return nil, apperror.Unauthenticated("an account with this email already exists, please sign in with your password")
		case !acct.EmailVerified && acct.PasswordHash != "":
			p.logger.Warn("dropping unverified password on google link", slog.String("account_id", acct.ID))
			acct.PasswordHash = ""
			p.endSessionsFor(ctx, acct.ID)
		}
		acct.GoogleID = user.ID
	default:
		return nil, err
	}

	if acct.DisplayName == "" {
		acct.DisplayName = user.Name
	}
	if user.Picture != "" {
		acct.AvatarURL = user.Picture
	}
	if user.VerifiedEmail {
		acct.EmailVerified = true
	}

	if err := p.saveAccount(ctx, acct); err != nil {
		return nil, err
	}
	return p.startSession(ctx, acct)
}

// SignOut ends a session. Ending a session that does not exist is not an
// error and notifies nobody.
func (p *LocalProvider) SignOut(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	_, ok := p.sessions[sessionID]
	delete(p.sessions, sessionID)
	p.mu.Unlock()

	if ok {
		p.notify(ctx, sessionID, nil)
	}
	return nil
}

// endSessionsFor ends every live session of an account.
func (p *LocalProvider) endSessionsFor(ctx context.Context, accountID string) {
	var ended []string
	p.mu.Lock()
	for id, e := range p.sessions {
		if e.identity.ID == accountID {
			delete(p.sessions, id)
			ended = append(ended, id)
		}
	}
	p.mu.Unlock()

	for _, id := range ended {
		p.notify(ctx, id, nil)
	}
}

// =========================================================================
// SESSIONS
// =========================================================================

// CurrentSession resolves a session token. The token must be valid and its
// session must still be in the table.
//
// Every call also prunes expired sessions, notifying nil for each.
func (p *LocalProvider) CurrentSession(ctx context.Context, token string) (*Session, error) {
	p.mu.Lock()
	expired := p.pruneExpiredLocked(p.now())
	p.mu.Unlock()
	for _, id := range expired {
		p.notify(ctx, id, nil)
	}

	claims, err := p.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthenticated("your session has expired, please sign in again")
	}

	p.mu.RLock()
	entry, ok := p.sessions[claims.SessionID]
	var identity model.Identity
	if ok {
		identity = entry.identity
	}
	p.mu.RUnlock()

	if !ok || identity.ID != claims.Subject {
		return nil, apperror.Unauthenticated("your session has expired, please sign in again")
	}

	return &Session{
		ID:        claims.SessionID,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		Identity:  &identity,
	}, nil
}

// Refresh reissues the session token with a new expiry and re-reads the
// account. Subscribers are notified as for a sign-in.
func (p *LocalProvider) Refresh(ctx context.Context, sessionID string) (*Session, error) {
	p.mu.RLock()
	entry, ok := p.sessions[sessionID]
	var accountID string
	if ok {
		accountID = entry.identity.ID
	}
	p.mu.RUnlock()

	if !ok {
		return nil, apperror.Unauthenticated("your session has expired, please sign in again")
	}

	acct, err := p.loadAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = p.SignOut(ctx, sessionID)
			return nil, apperror.Unauthenticated("this account no longer exists")
		}
		return nil, err
	}

	token, expires, err := p.tokens.Generate(acct.ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("auth: refreshing session: %w", err)
	}

	identity := acct.identity()

	p.mu.Lock()
	entry, ok = p.sessions[sessionID]
	if ok {
		entry.identity = identity
		entry.expiresAt = expires
	}
	p.mu.Unlock()

	// Signed out while the account was being read.
	if !ok {
		return nil, apperror.Unauthenticated("your session has expired, please sign in again")
	}

	p.notify(ctx, sessionID, &identity)
	return &Session{ID: sessionID, Token: token, ExpiresAt: expires, Identity: &identity}, nil
}

// Subscribe registers fn for session changes until unsubscribe is called.
func (p *LocalProvider) Subscribe(fn Listener) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *LocalProvider) startSession(ctx context.Context, acct account) (*Session, error) {
	sessionID := uuid.NewString()
	token, expires, err := p.tokens.Generate(acct.ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("auth: starting session: %w", err)
	}

	identity := acct.identity()
	now := p.now()

	p.mu.Lock()
	expired := p.pruneExpiredLocked(now)
	p.sessions[sessionID] = &sessionEntry{identity: identity, expiresAt: expires}
	p.mu.Unlock()

	for _, id := range expired {
		p.notify(ctx, id, nil)
	}

	p.logger.Info("session started",
		slog.String("account_id", acct.ID),
		slog.String("session_id", sessionID),
	)

	p.notify(ctx, sessionID, &identity)
	return &Session{ID: sessionID, Token: token, ExpiresAt: expires, Identity: &identity}, nil
}

// pruneExpiredLocked drops expired sessions and returns their ids. The
// caller holds p.mu and notifies after unlocking.
func (p *LocalProvider) pruneExpiredLocked(now time.Time) []string {
	var expired []string
	for id, e := range p.sessions {
		if now.After(e.expiresAt) {
			delete(p.sessions, id)
			expired = append(expired, id)
		}
	}
	return expired
}

func (p *LocalProvider) notify(ctx context.Context, sessionID string, identity *model.Identity) {
	p.mu.RLock()
	listeners := make([]Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.RUnlock()

	for _, fn := range listeners {
		var copied *model.Identity
		if identity != nil {
			c := *identity
			copied = &c
		}
		fn(ctx, sessionID, copied)
	}
}

// =========================================================================
// ACCOUNTS
// =========================================================================

type account struct {
	ID            string
	Email         string
	DisplayName   string
	AvatarURL     string
	PasswordHash  string
	GoogleID      string
	EmailVerified bool
	CreatedAt     time.Time
}

func (a account) identity() model.Identity {
	return model.Identity{
		ID:            a.ID,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		AvatarURL:     a.AvatarURL,
		EmailVerified: a.EmailVerified,
	}
}

func (a account) document() docstore.Document {
	doc := docstore.Document{
		"email":         a.Email,
		"displayName":   a.DisplayName,
		"avatarUrl":     a.AvatarURL,
		"passwordHash":  a.PasswordHash,
		"googleId":      a.GoogleID,
		"emailVerified": a.EmailVerified,
		"createdAt":     a.CreatedAt,
	}
	if a.CreatedAt.IsZero() {
		doc["createdAt"] = docstore.ServerTimestamp
	}
	return doc
}

func accountFromSnapshot(s docstore.Snapshot) account {
	str := func(k string) string {
		v, _ := s.Data[k].(string)
		return v
	}
	verified, _ := s.Data["emailVerified"].(bool)
	created, _ := s.Data["createdAt"].(time.Time)
	return account{
		ID:            s.ID,
		Email:         str("email"),
		DisplayName:   str("displayName"),
		AvatarURL:     str("avatarUrl"),
		PasswordHash:  str("passwordHash"),
		GoogleID:      str("googleId"),
		EmailVerified: verified,
		CreatedAt:     created,
	}
}

func (p *LocalProvider) findAccount(ctx context.Context, field, value string) (account, error) {
	if value == "" {
		return account{}, apperror.NotFound("account", field)
	}
	snaps, err := p.store.Query(ctx, AccountsCollection, docstore.Eq(field, value))
	if err != nil {
		return account{}, apperror.Unavailable("sign-in is unavailable right now, please try again later", err)
	}
	if len(snaps) == 0 {
		return account{}, apperror.NotFound("account", value)
	}
	return accountFromSnapshot(snaps[0]), nil
}

func (p *LocalProvider) loadAccount(ctx context.Context, id string) (account, error) {
	snap, err := p.store.Get(ctx, AccountsCollection, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return account{}, apperror.NotFound("account", id)
		}
		return account{}, apperror.Unavailable("sign-in is unavailable right now, please try again later", err)
	}
	return accountFromSnapshot(*snap), nil
}

func (p *LocalProvider) saveAccount(ctx context.Context, acct account) error {
	if err := p.store.Set(ctx, AccountsCollection, acct.ID, acct.document()); err != nil {
		return apperror.Unavailable("sign-in is unavailable right now, please try again later", err)
	}
	return nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
