// Package session owns authentication state and the rotating write token
// shared by every upload task.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/wikisync/pkg/retry"
	"github.com/walteh/wikisync/pkg/wiki"
	"gitlab.com/tozd/go/errors"
)

// DefaultTokenTTL is how long a cached write token is trusted before a
// fresh one is fetched.
const DefaultTokenTTL = 60 * time.Second

// Credentials identify the wiki account used for the sync run.
type Credentials struct {
	Username string
	Password string
}

// Options tune the session.
type Options struct {
	// TokenTTL overrides DefaultTokenTTL.
	TokenTTL time.Duration

	// Retry is the base retry policy for session-level calls. Classify
	// defaults to wiki.Classify.
	Retry retry.Policy
}

// Session performs the login handshake and hands out write tokens.
// The token is replaced wholesale under the mutex, so a concurrent
// reader either sees the old value or the new one, never a torn one.
type Session struct {
	client *wiki.Client
	creds  Credentials
	ttl    time.Duration
	policy retry.Policy

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

// New creates a session against the given client.
func New(client *wiki.Client, creds Credentials, opts Options) *Session {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Retry.Classify == nil {
		opts.Retry.Classify = wiki.Classify
	}
	return &Session{
		client: client,
		creds:  creds,
		ttl:    opts.TokenTTL,
		policy: opts.Retry,
	}
}

// Authenticate performs the two-step login handshake: fetch a login
// token, then submit it with the credentials. The handshake is retried
// as a unit so a stale login token is refetched on the next attempt.
func (s *Session) Authenticate(ctx context.Context) error {
	err := retry.Do(ctx, "login", s.policy, func(ctx context.Context) error {
		token, err := s.client.LoginToken(ctx)
		if err != nil {
			return err
		}
		return s.client.Login(ctx, s.creds.Username, s.creds.Password, token)
	})
	if err != nil {
		return errors.Errorf("authenticating as %q: %w", s.creds.Username, err)
	}
	zerolog.Ctx(ctx).Debug().Str("user", s.creds.Username).Msg("authenticated")
	return nil
}

// Token returns the current write token. Unless force is set, a cached
// token younger than the TTL is reused; otherwise a fresh token is
// fetched and the age timer resets.
func (s *Session) Token(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	if !force && s.token != "" && time.Since(s.fetchedAt) < s.ttl {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	var token string
	err := retry.Do(ctx, "write token", s.policy, func(ctx context.Context) error {
		t, err := s.client.CSRFToken(ctx)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		return "", errors.Errorf("fetching write token: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	zerolog.Ctx(ctx).Debug().Bool("forced", force).Msg("write token refreshed")
	return token, nil
}

// Refresh discards the cached token and fetches a new one. It has the
// shape retry.Policy.Refresh expects.
func (s *Session) Refresh(ctx context.Context) error {
	_, err := s.Token(ctx, true)
	return err
}

// WritePolicy returns the session's retry policy with the token-refresh
// hook attached, for wrapping write operations.
func (s *Session) WritePolicy() retry.Policy {
	return s.policy.WithRefresh(s.Refresh)
}

// ReadPolicy returns the session's retry policy without a refresh hook.
func (s *Session) ReadPolicy() retry.Policy {
	return s.policy
}
