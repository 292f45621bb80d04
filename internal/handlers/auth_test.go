package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/contestgate/internal/logger"
	"github.com/nkiryanov/contestgate/internal/models"
	"github.com/nkiryanov/contestgate/internal/repository/postgres"
	"github.com/nkiryanov/contestgate/internal/service/auth"
	"github.com/nkiryanov/contestgate/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/contestgate/internal/service/codes"
	"github.com/nkiryanov/contestgate/internal/service/user"
	"github.com/nkiryanov/contestgate/internal/testutil"
)

// Remembers the last code sent to every email
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) SendAuthCode(_ context.Context, email string, code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[email] = code
	return nil
}

func (i *inbox) last(email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[email]
}

type client struct {
	t   *testing.T
	url string
}

type response struct {
	status  int
	body    string
	header  http.Header
	cookies []*http.Cookie
}

func (c client) post(path string, data string, opts ...func(*http.Request)) response {
	c.t.Helper()

	req, err := http.NewRequestWithContext(c.t.Context(), http.MethodPost, c.url+path, strings.NewReader(data))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	return c.do(req)
}

func (c client) get(path string, opts ...func(*http.Request)) response {
	c.t.Helper()

	req, err := http.NewRequestWithContext(c.t.Context(), http.MethodGet, c.url+path, nil)
	require.NoError(c.t, err)
	for _, opt := range opts {
		opt(req)
	}

	return c.do(req)
}

func (c client) do(req *http.Request) response {
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	return response{status: resp.StatusCode, body: string(body), header: resp.Header, cookies: resp.Cookies()}
}

func withBearer(header string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", header) }
}

func withCookie(cookie *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value}) }
}

func Test_Router(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server with production services bound to a rolled back transaction
	withTx := func(t *testing.T, fn func(c client, box *inbox, s *auth.Service)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			users, err := user.NewService(user.BcryptHasher{Cost: bcrypt.MinCost}, storage)
			require.NoError(t, err)
			tokens, err := tokenmanager.New(tokenmanager.Config{AccessSecretKey: "access", RefreshSecretKey: "refresh"}, storage)
			require.NoError(t, err)
			registry, err := codes.New(codes.Config{}, storage, nil)
			require.NoError(t, err)

			box := &inbox{codes: make(map[string]string)}
			s, err := auth.NewService(storage, users, tokens, registry, box, nil)
			require.NoError(t, err)

			srv := httptest.NewServer(NewRouter(s, logger.NewNoOpLogger()))
			defer srv.Close()

			fn(client{t: t, url: srv.URL}, box, s)
		})
	}

	// Request code and register, return response of register request
	register := func(c client, box *inbox, email string, role string, roleCode string) response {
		resp := c.post("/api/auth/codes", fmt.Sprintf(`{"email": %q}`, email))
		require.Equalf(c.t, http.StatusAccepted, resp.status, "Body: %s", resp.body)

		data := fmt.Sprintf(`{"email": %q, "password": "StrongEnoughPassword", "role": %q, "email_code": %q, "role_code": %q}`,
			email, role, box.last(email), roleCode)
		return c.post("/api/auth/register", data)
	}

	login := func(c client, email string) response {
		resp := c.post("/api/auth/login", fmt.Sprintf(`{"email": %q, "password": "StrongEnoughPassword"}`, email))
		require.Equalf(c.t, http.StatusOK, resp.status, "Body: %s", resp.body)
		return resp
	}

	t.Run("register ok", func(t *testing.T) {
		withTx(t, func(c client, box *inbox, _ *auth.Service) {
			resp := register(c, box, "student@example.com", "student", "")

			require.Equalf(t, http.StatusOK, resp.status, "not expected code. Body: %s", resp.body)
			require.JSONEq(t, `{"message": "User registered successfully"}`, resp.body)

			require.Len(t, resp.cookies, 1)
			cookie := resp.cookies[0]
			require.Equal(t, "refresh_token", cookie.Name)
			require.True(t, cookie.HttpOnly, "refresh cookie should be HttpOnly")
			require.NotEmpty(t, cookie.Value, "refresh cookie should not be empty")
			require.True(t, strings.HasPrefix(resp.header.Get("Authorization"), "Bearer "))
		})
	})

	t.Run("register with wrong code fail", func(t *testing.T) {
		withTx(t, func(c client, _ *inbox, _ *auth.Service) {
			resp := c.post("/api/auth/codes", `{"email": "student@example.com"}`)
			require.Equal(t, http.StatusAccepted, resp.status)

			resp = c.post("/api/auth/register",
				`{"email": "student@example.com", "password": "StrongEnoughPassword", "role": "student", "email_code": "0"}`)

			require.Equalf(t, http.StatusBadRequest, resp.status, "Body: %s", resp.body)
			require.Empty(t, resp.cookies, "no cookies should be set on register error")
			require.NotContains(t, resp.header, "Authorization")
		})
	})

	t.Run("register admin forbidden", func(t *testing.T) {
		withTx(t, func(c client, box *inbox, _ *auth.Service) {
			resp := register(c, box, "admin@example.com", "admin", "")

			require.Equalf(t, http.StatusForbidden, resp.status, "Body: %s", resp.body)
		})
	})

	t.Run("register existed user fails", func(t *testing.T) {
		withTx(t, func(c client, box *inbox, _ *auth.Service) {
			resp := register(c, box, "student@example.com", "student", "")
			require.Equal(t, http.StatusOK, resp.status)

			resp = register(c, box, "student@example.com", "student", "")

			require.Equalf(t, http.StatusConflict, resp.status, "Body: %s", resp.body)
			require.JSONEq(t, `{"error": "service_error", "message": "User already exists"}`, resp.body)
		})
	})

	t.Run("register validation", func(t *testing.T) {
		withTx(t, func(c client, _ *inbox, _ *auth.Service) {
			resp := c.post("/api/auth/register",
				`{"email": "not-email", "password": "short", "role": "root", "email_code": "abc"}`)

			require.Equal(t, http.StatusBadRequest, resp.status)
			var body struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}
			require.NoError(t, json.Unmarshal([]byte(resp.body), &body))
			require.Equal(t, "validation_failed", body.Error)
			require.Contains(t, body.Fields, "email")
			require.Contains(t, body.Fields, "password")
			require.Contains(t, body.Fields, "role")
			require.Contains(t, body.Fields, "email_code")
		})
	})

	t.Run("login failed", func(t *testing.T) {
		withTx(t, func(c client, _ *inbox, _ *auth.Service) {
			resp := c.post("/api/auth/login", `{"email": "nobody@example.com", "password": "WrongPassword"}`)

			require.Equalf(t, http.StatusUnauthorized, resp.status, "Body: %s", resp.body)
			require.JSONEq(t, `{"error": "service_error", "message": "Invalid email or password"}`, resp.body)
			require.Empty(t, resp.cookies, "no cookies should be set on login error")
			require.NotContains(t, resp.header, "Authorization", "Authorization header should not be set")
		})
	})

	t.Run("me", func(t *testing.T) {
		withTx(t, func(c client, box *inbox, _ *auth.Service) {
			register(c, box, "student@example.com", "student", "")
			resp := login(c, "student@example.com")

			me := c.get("/api/user/me", withBearer(resp.header.Get("Authorization")))

			require.Equalf(t, http.StatusOK, me.status, "Body: %s", me.body)
			require.Contains(t, me.body, `"email":"student@example.com"`)
			require.Contains(t, me.body, `"role":"student"`)

			anon := c.get("/api/user/me")
			require.Equal(t, http.StatusUnauthorized, anon.status)

			forged := c.get("/api/user/me", withBearer("Bearer forged"))
			require.Equal(t, http.StatusUnauthorized, forged.status)
		})
	})

	t.Run("refresh and logout everywhere", func(t *testing.T) {
		withTx(t, func(c client, box *inbox, _ *auth.Service) {
			register(c, box, "student@example.com", "student", "")
			first := login(c, "student@example.com")
			require.Len(t, first.cookies, 1)

			refreshed := c.post("/api/auth/refresh", "", withCookie(first.cookies[0]))
			require.Equalf(t, http.StatusOK, refreshed.status, "Body: %s", refreshed.body)
			require.JSONEq(t, `{"message": "Tokens refreshed successfully"}`, refreshed.body)
			require.Len(t, refreshed.cookies, 1)

			out := c.post("/api/auth/logout-everywhere", "", withBearer(refreshed.header.Get("Authorization")))
			require.Equalf(t, http.StatusOK, out.status, "Body: %s", out.body)

			for _, cookie := range []*http.Cookie{first.cookies[0], refreshed.cookies[0]} {
				resp := c.post("/api/auth/refresh", "", withCookie(cookie))
				require.Equalf(t, http.StatusUnauthorized, resp.status, "revoked token must not refresh. Body: %s", resp.body)
			}
		})
	})

	t.Run("refresh without cookie", func(t *testing.T) {
		withTx(t, func(c client, _ *inbox, _ *auth.Service) {
			resp := c.post("/api/auth/refresh", "")

			require.Equal(t, http.StatusUnauthorized, resp.status)
			require.JSONEq(t, `{"error": "service_error", "message": "Refresh token not found"}`, resp.body)
		})
	})

	t.Run("confirm auth code", func(t *testing.T) {
		withTx(t, func(c client, box *inbox, _ *auth.Service) {
			resp := c.post("/api/auth/codes", `{"email": "student@example.com"}`)
			require.Equal(t, http.StatusAccepted, resp.status)
			data := fmt.Sprintf(`{"email": "student@example.com", "code": %q}`, box.last("student@example.com"))

			require.Equal(t, http.StatusOK, c.post("/api/auth/codes/confirm", data).status)
			require.Equal(t, http.StatusBadRequest, c.post("/api/auth/codes/confirm", data).status, "code is single use")
		})
	})

	t.Run("password reset", func(t *testing.T) {
		withTx(t, func(c client, box *inbox, _ *auth.Service) {
			register(c, box, "student@example.com", "student", "")
			resp := c.post("/api/auth/codes", `{"email": "student@example.com"}`)
			require.Equal(t, http.StatusAccepted, resp.status)

			data := fmt.Sprintf(`{"email": "student@example.com", "code": %q, "password": "AnotherStrongPassword"}`, box.last("student@example.com"))
			resp = c.post("/api/auth/password/reset", data)
			require.Equalf(t, http.StatusOK, resp.status, "Body: %s", resp.body)

			resp = c.post("/api/auth/login", `{"email": "student@example.com", "password": "AnotherStrongPassword"}`)
			require.Equal(t, http.StatusOK, resp.status)
		})
	})

	t.Run("role codes", func(t *testing.T) {
		t.Run("student can't invite", func(t *testing.T) {
			withTx(t, func(c client, box *inbox, _ *auth.Service) {
				register(c, box, "student@example.com", "student", "")
				resp := login(c, "student@example.com")

				invite := c.post("/api/auth/role-codes", `{"role": "coach"}`, withBearer(resp.header.Get("Authorization")))

				require.Equal(t, http.StatusForbidden, invite.status)
			})
		})

		t.Run("anonymous can't invite", func(t *testing.T) {
			withTx(t, func(c client, _ *inbox, _ *auth.Service) {
				invite := c.post("/api/auth/role-codes", `{"role": "coach"}`)

				require.Equal(t, http.StatusUnauthorized, invite.status)
			})
		})

		t.Run("confirm", func(t *testing.T) {
			withTx(t, func(c client, _ *inbox, s *auth.Service) {
				code, err := s.RequestRoleCode(t.Context(), models.RoleCoach)
				require.NoError(t, err)
				data := fmt.Sprintf(`{"role": "coach", "code": %q}`, code)

				require.Equal(t, http.StatusOK, c.post("/api/auth/role-codes/confirm", data).status)
				require.Equal(t, http.StatusBadRequest, c.post("/api/auth/role-codes/confirm", data).status)
			})
		})

		t.Run("register coach with invite", func(t *testing.T) {
			withTx(t, func(c client, box *inbox, s *auth.Service) {
				code, err := s.RequestRoleCode(t.Context(), models.RoleCoach)
				require.NoError(t, err)

				resp := register(c, box, "coach@example.com", "coach", code)
				require.Equalf(t, http.StatusOK, resp.status, "Body: %s", resp.body)

				me := c.get("/api/user/me", withBearer(resp.header.Get("Authorization")))
				require.Contains(t, me.body, `"role":"coach"`)
			})
		})
	})
}
