package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/fastcheck/internal/backend"
	"github.com/ayusman/fastcheck/internal/store"
)

// ErrNoSession is returned when no usable backend session is available.
var ErrNoSession = errors.New("not logged in")

// tokenLeeway is how long before expiry a token is considered stale.
const tokenLeeway = time.Minute

// Session keeps the backend login across restarts by persisting the access
// token in the settings table.
type Session struct {
	client   *backend.Client
	settings *store.SettingsRepository
	now      func() time.Time
	log      zerolog.Logger
}

// NewSession creates a session manager for client backed by st.
func NewSession(client *backend.Client, st *store.Store, log zerolog.Logger) *Session {
	return &Session{
		client:   client,
		settings: st.Settings(),
		now:      time.Now,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// Restore installs the saved token if it has not expired and the backend
// still accepts it. A rejected or expired token is forgotten.
func (s *Session) Restore(ctx context.Context) error {
	token, err := s.settings.Get(store.SettingAccessToken)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoSession
	}
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}

	s.client.SetToken(token)
	if !s.client.TokenValid(s.now(), tokenLeeway) {
		s.log.Info().Msg("saved token expired")
		s.forget()
		return ErrNoSession
	}

	if err := s.client.CheckSession(ctx); err != nil {
		if backend.IsUnauthorized(err) {
			s.log.Info().Msg("saved token rejected by backend")
			s.forget()
			return ErrNoSession
		}
		return err
	}

	s.log.Info().Msg("session restored")
	return nil
}

// Login authenticates and saves the token.
func (s *Session) Login(ctx context.Context, creds backend.Credentials) (backend.Token, error) {
	tok, err := s.client.Login(ctx, creds)
	if err != nil {
		return backend.Token{}, err
	}
	if err := s.settings.Set(store.SettingAccessToken, tok.AccessToken); err != nil {
		return tok, fmt.Errorf("save token: %w", err)
	}
	if err := s.settings.Set(store.SettingUserID, creds.ID); err != nil {
		return tok, fmt.Errorf("save user: %w", err)
	}
	return tok, nil
}

// Signup creates a backend account. It does not log in.
func (s *Session) Signup(ctx context.Context, req backend.SignupRequest) error {
	return s.client.Signup(ctx, req)
}

// Ensure restores the saved session and falls back to logging in with creds
// when they are set.
func (s *Session) Ensure(ctx context.Context, creds backend.Credentials) error {
	err := s.Restore(ctx)
	if err == nil {
		return nil
	}
	if creds.ID == "" || creds.Password == "" {
		return err
	}
	_, err = s.Login(ctx, creds)
	return err
}

// Logout drops the token locally. The backend keeps no server-side session.
func (s *Session) Logout() error {
	s.forget()
	return s.settings.Delete(store.SettingUserID)
}

// User returns the saved user id, or "" when logged out.
func (s *Session) User() string {
	id, err := s.settings.Get(store.SettingUserID)
	if err != nil {
		return ""
	}
	return id
}

// Active reports whether a non-expired token is installed.
func (s *Session) Active() bool {
	return s.client.TokenValid(s.now(), tokenLeeway)
}

func (s *Session) forget() {
	s.client.SetToken("")
	if err := s.settings.Delete(store.SettingAccessToken); err != nil {
		s.log.Warn().Err(err).Msg("failed to delete saved token")
	}
}
