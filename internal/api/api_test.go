// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package api_test

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gatehouse/gatehouse/internal/api"
	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/internal/token"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testAppURL = "http://app.test"

// memUserRepo is an in-memory auth.UserRepository for end-to-end
// handler tests.
type memUserRepo struct {
	mu    sync.Mutex
	users []*auth.User
}

func (r *memUserRepo) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return auth.ErrEmailTaken
		}
	}
	copied := *user
	r.users = append(r.users, &copied)
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUserRepo) List(_ context.Context) ([]*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*auth.User, len(r.users))
	for i, u := range r.users {
		copied := *u
		out[i] = &copied
	}
	return out, nil
}

func (r *memUserRepo) SetConfirmed(_ context.Context, id ulid.ULID, confirmed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			u.Confirmed = confirmed
			return nil
		}
	}
	return auth.ErrNotFound
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			u.PasswordHash = passwordHash
			return nil
		}
	}
	return auth.ErrNotFound
}

// captureSender records outgoing mail instead of sending it.
type captureSender struct {
	mu    sync.Mutex
	mails []capturedMail
}

type capturedMail struct {
	to      string
	subject string
	body    string
}

func (s *captureSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mails = append(s.mails, capturedMail{to: to, subject: subject, body: body})
	return nil
}

func (s *captureSender) last(t *testing.T) capturedMail {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.mails)
	return s.mails[len(s.mails)-1]
}

var tokenLinkRe = regexp.MustCompile(`/(?:confirm|change-password)/([0-9a-f-]+)`)

func (s *captureSender) lastToken(t *testing.T) string {
	t.Helper()
	match := tokenLinkRe.FindStringSubmatch(s.last(t).body)
	require.Len(t, match, 2)
	return match[1]
}

// brokenDelStore refuses to delete sessions, simulating a store that
// has gone away between login and logout.
type brokenDelStore struct {
	session.Store
}

func (s *brokenDelStore) Del(context.Context, string) error {
	return errors.New("store unavailable")
}

type fixture struct {
	handler  http.Handler
	users    *memUserRepo
	mails    *captureSender
	sessions *session.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithSessions(t, session.NewMemoryStore())
}

func newFixtureWithSessions(t *testing.T, store session.Store) *fixture {
	t.Helper()

	users := &memUserRepo{}
	mails := &captureSender{}
	tokens := token.NewMemoryStore()
	hasher := auth.NewArgon2idHasherWithParams(auth.HasherParams{
		Time:    1,
		Memory:  8 * 1024,
		Threads: 1,
		SaltLen: 16,
		KeyLen:  32,
	})

	authSvc, err := auth.NewService(users, tokens, hasher, mails, testAppURL)
	require.NoError(t, err)
	resetSvc, err := auth.NewPasswordResetService(users, tokens, hasher, mails, testAppURL)
	require.NoError(t, err)
	sessions, err := session.NewManager(store, "", false)
	require.NoError(t, err)

	srv, err := api.NewServer(":0", api.Deps{
		Auth:     authSvc,
		Reset:    resetSvc,
		Sessions: sessions,
	})
	require.NoError(t, err)

	return &fixture{
		handler:  srv.Handler(),
		users:    users,
		mails:    mails,
		sessions: sessions,
	}
}

// register creates a user through the API and returns the confirmation
// token from the captured mail.
func (f *fixture) register(t *testing.T, email string) string {
	t.Helper()
	apitest.New().
		Handler(f.handler).
		Post("/v1/register").
		JSON(`{"firstName": "Ada", "lastName": "Lovelace", "email": "` + email + `", "password": "secret pass"}`).
		Expect(t).
		Status(http.StatusCreated).
		End()
	return f.mails.lastToken(t)
}

// confirmAndLogin completes registration and returns a valid session
// cookie value.
func (f *fixture) confirmAndLogin(t *testing.T, email string) string {
	t.Helper()
	confirmToken := f.register(t, email)

	apitest.New().
		Handler(f.handler).
		Post("/v1/confirm").
		JSON(`{"token": "` + confirmToken + `"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal(`$.ok`, true)).
		End()

	user, err := f.users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	sid, err := f.sessions.Create(context.Background(), user.ID)
	require.NoError(t, err)
	return sid
}

func TestRegister(t *testing.T) {
	t.Run("creates user and mails confirmation link", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Post("/v1/register").
			JSON(`{"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com", "password": "secret pass"}`).
			Expect(t).
			Status(http.StatusCreated).
			Assert(jsonpath.Equal(`$.user.email`, "ada@example.com")).
			Assert(jsonpath.Equal(`$.user.fullName`, "Ada Lovelace")).
			Assert(jsonpath.Equal(`$.user.confirmed`, false)).
			End()

		mail := f.mails.last(t)
		require.Equal(t, "ada@example.com", mail.to)
		require.Equal(t, "Confirm your email", mail.subject)
		require.Contains(t, mail.body, testAppURL+"/confirm/")
	})

	t.Run("invalid input returns per-field errors", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Post("/v1/register").
			JSON(`{"firstName": "Al", "lastName": "Lovelace", "email": "nope", "password": "secret pass"}`).
			Expect(t).
			Status(http.StatusUnprocessableEntity).
			Assert(jsonpath.Len(`$.errors`, 2)).
			Assert(jsonpath.Equal(`$.errors[0].field`, "firstName")).
			Assert(jsonpath.Equal(`$.errors[1].field`, "email")).
			End()
	})

	t.Run("duplicate email returns a field error", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Post("/v1/register").
			JSON(`{"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com", "password": "secret pass"}`).
			Expect(t).
			Status(http.StatusUnprocessableEntity).
			Assert(jsonpath.Equal(`$.errors[0].field`, "email")).
			Assert(jsonpath.Equal(`$.errors[0].message`, "Email already in use.")).
			End()
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Post("/v1/register").
			Body(`{not json`).
			Expect(t).
			Status(http.StatusBadRequest).
			End()
	})
}

func TestConfirm(t *testing.T) {
	t.Run("token redeems exactly once", func(t *testing.T) {
		f := newFixture(t)
		confirmToken := f.register(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Post("/v1/confirm").
			JSON(`{"token": "` + confirmToken + `"}`).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.ok`, true)).
			End()

		// Second redemption fails quietly.
		apitest.New().
			Handler(f.handler).
			Post("/v1/confirm").
			JSON(`{"token": "` + confirmToken + `"}`).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.ok`, false)).
			End()
	})

	t.Run("unknown token reports false", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Post("/v1/confirm").
			JSON(`{"token": "never-issued"}`).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.ok`, false)).
			End()
	})
}

func TestLogin(t *testing.T) {
	t.Run("valid confirmed credentials set the session cookie", func(t *testing.T) {
		f := newFixture(t)
		confirmToken := f.register(t, "ada@example.com")
		apitest.New().
			Handler(f.handler).
			Post("/v1/confirm").
			JSON(`{"token": "` + confirmToken + `"}`).
			Expect(t).
			Status(http.StatusOK).
			End()

		apitest.New().
			Handler(f.handler).
			Post("/v1/login").
			JSON(`{"email": "ada@example.com", "password": "secret pass"}`).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.user.email`, "ada@example.com")).
			CookiePresent(session.CookieName).
			End()
	})

	t.Run("unconfirmed account is denied with a null user", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Post("/v1/login").
			JSON(`{"email": "ada@example.com", "password": "secret pass"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"user": null}`).
			End()
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		f := newFixture(t)
		f.confirmAndLogin(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Post("/v1/login").
			JSON(`{"email": "ada@example.com", "password": "wrong"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"user": null}`).
			End()

		apitest.New().
			Handler(f.handler).
			Post("/v1/login").
			JSON(`{"email": "ghost@example.com", "password": "secret pass"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"user": null}`).
			End()
	})
}

func TestMe(t *testing.T) {
	t.Run("no cookie yields a null user", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Get("/v1/me").
			Expect(t).
			Status(http.StatusOK).
			Body(`{"user": null}`).
			End()
	})

	t.Run("stale cookie yields a null user", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Get("/v1/me").
			Cookie(session.CookieName, "deadbeef").
			Expect(t).
			Status(http.StatusOK).
			Body(`{"user": null}`).
			End()
	})

	t.Run("valid session yields the current user", func(t *testing.T) {
		f := newFixture(t)
		sid := f.confirmAndLogin(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Get("/v1/me").
			Cookie(session.CookieName, sid).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.user.email`, "ada@example.com")).
			Assert(jsonpath.Equal(`$.user.confirmed`, true)).
			End()
	})
}

func TestHelloGuard(t *testing.T) {
	t.Run("rejects anonymous requests", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Get("/v1/hello").
			Expect(t).
			Status(http.StatusUnauthorized).
			End()
	})

	t.Run("rejects stale sessions", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Get("/v1/hello").
			Cookie(session.CookieName, "deadbeef").
			Expect(t).
			Status(http.StatusUnauthorized).
			End()
	})

	t.Run("greets authenticated users", func(t *testing.T) {
		f := newFixture(t)
		sid := f.confirmAndLogin(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Get("/v1/hello").
			Cookie(session.CookieName, sid).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.message`, "hello user")).
			End()
	})
}

func TestUsersList(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@example.com")
	f.register(t, "b@example.com")

	apitest.New().
		Handler(f.handler).
		Get("/v1/users").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len(`$.users`, 2)).
		Assert(jsonpath.Equal(`$.users[0].email`, "a@example.com")).
		End()
}

func TestLogout(t *testing.T) {
	t.Run("destroys the session and clears the cookie", func(t *testing.T) {
		f := newFixture(t)
		sid := f.confirmAndLogin(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Post("/v1/logout").
			Cookie(session.CookieName, sid).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.ok`, true)).
			End()

		_, ok, err := f.sessions.UserID(context.Background(), sid)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("reports failure when the store refuses the destroy", func(t *testing.T) {
		f := newFixtureWithSessions(t, &brokenDelStore{Store: session.NewMemoryStore()})
		sid := f.confirmAndLogin(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Post("/v1/logout").
			Cookie(session.CookieName, sid).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.ok`, false)).
			Assert(func(res *http.Response, _ *http.Request) error {
				for _, c := range res.Cookies() {
					if c.Name == session.CookieName {
						require.Empty(t, c.Value)
						require.Negative(t, c.MaxAge)
						return nil
					}
				}
				return errors.New("session cookie was not cleared")
			}).
			End()
	})

	t.Run("without a session still reports ok", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Post("/v1/logout").
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.ok`, true)).
			End()
	})
}

func TestForgotPassword(t *testing.T) {
	t.Run("known email gets a reset mail", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Post("/v1/forgot-password").
			JSON(`{"email": "ada@example.com"}`).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.ok`, true)).
			End()

		mail := f.mails.last(t)
		require.Equal(t, "Reset your password", mail.subject)
		require.Contains(t, mail.body, testAppURL+"/change-password/")
	})

	t.Run("unknown email reports the same success", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Post("/v1/forgot-password").
			JSON(`{"email": "ghost@example.com"}`).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.ok`, true)).
			End()
	})
}

func TestChangePassword(t *testing.T) {
	t.Run("valid token sets the new password and logs in", func(t *testing.T) {
		f := newFixture(t)
		f.confirmAndLogin(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Post("/v1/forgot-password").
			JSON(`{"email": "ada@example.com"}`).
			Expect(t).
			Status(http.StatusOK).
			End()
		resetToken := f.mails.lastToken(t)

		apitest.New().
			Handler(f.handler).
			Post("/v1/change-password").
			JSON(`{"token": "` + resetToken + `", "password": "brand new pass"}`).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.user.email`, "ada@example.com")).
			CookiePresent(session.CookieName).
			End()

		// The old password no longer works; the new one does.
		apitest.New().
			Handler(f.handler).
			Post("/v1/login").
			JSON(`{"email": "ada@example.com", "password": "secret pass"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"user": null}`).
			End()
		apitest.New().
			Handler(f.handler).
			Post("/v1/login").
			JSON(`{"email": "ada@example.com", "password": "brand new pass"}`).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.user.email`, "ada@example.com")).
			End()
	})

	t.Run("invalid token yields a null user", func(t *testing.T) {
		f := newFixture(t)

		apitest.New().
			Handler(f.handler).
			Post("/v1/change-password").
			JSON(`{"token": "never-issued", "password": "brand new pass"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"user": null}`).
			End()
	})

	t.Run("short password fails validation without consuming the token", func(t *testing.T) {
		f := newFixture(t)
		f.confirmAndLogin(t, "ada@example.com")

		apitest.New().
			Handler(f.handler).
			Post("/v1/forgot-password").
			JSON(`{"email": "ada@example.com"}`).
			Expect(t).
			Status(http.StatusOK).
			End()
		resetToken := f.mails.lastToken(t)

		// A short password fails before the token is redeemed, so the
		// token stays valid.
		apitest.New().
			Handler(f.handler).
			Post("/v1/change-password").
			JSON(`{"token": "` + resetToken + `", "password": "ab"}`).
			Expect(t).
			Status(http.StatusUnprocessableEntity).
			Assert(jsonpath.Equal(`$.errors[0].field`, "password")).
			End()

		apitest.New().
			Handler(f.handler).
			Post("/v1/change-password").
			JSON(`{"token": "` + resetToken + `", "password": "brand new pass"}`).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal(`$.user.email`, "ada@example.com")).
			End()
	})
}
