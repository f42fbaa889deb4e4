package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/printpoints/internal/model"
)

func issueCookie(t *testing.T, m *AuthMiddleware, u *model.User) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	require.NoError(t, m.SetAuthCookie(w, u))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies, "no cookies set by SetAuthCookie")
	return cookies[0]
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	loc := int64(7)
	cookie := issueCookie(t, m, &model.User{ID: 42, Role: model.RoleLocation, LocationID: &loc})

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		actor, ok := ActorFromContext(r.Context())
		require.True(t, ok, "actor not in context")
		assert.Equal(t, model.Actor{ID: 42, Role: model.RoleLocation, LocationID: 7}, actor)
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(cookie)

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	assert.True(t, nextCalled, "next handler was not called")
	assert.True(t, cookie.HttpOnly)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	valid := issueCookie(t, m, &model.User{ID: 42, Role: model.RoleCustomer})

	foreign := issueCookie(t, NewAuthMiddleware("other-secret"), &model.User{ID: 42, Role: model.RoleCustomer})

	expired := NewAuthMiddleware("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	old := issueCookie(t, expired, &model.User{ID: 42, Role: model.RoleCustomer})

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		Role: model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "no cookie"},
		{name: "garbage", cookie: &http.Cookie{Name: authCookieName, Value: "garbage"}},
		{name: "tampered", cookie: &http.Cookie{Name: authCookieName, Value: valid.Value + "x"}},
		{name: "foreign secret", cookie: foreign},
		{name: "expired", cookie: old},
		{name: "alg none", cookie: &http.Cookie{Name: authCookieName, Value: none}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.cookie != nil {
				r.AddCookie(tt.cookie)
			}

			m.Middleware(next).ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		actor      *model.Actor
		wantStatus int
	}{
		{name: "anonymous", wantStatus: http.StatusUnauthorized},
		{name: "wrong role", actor: &model.Actor{ID: 1, Role: model.RoleCustomer}, wantStatus: http.StatusForbidden},
		{name: "admin", actor: &model.Actor{ID: 2, Role: model.RoleAdmin}, wantStatus: http.StatusOK},
		{name: "operator", actor: &model.Actor{ID: 3, Role: model.RoleLocation, LocationID: 1}, wantStatus: http.StatusOK},
	}

	h := RequireRole(model.RoleAdmin, model.RoleLocation)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.actor != nil {
				r = r.WithContext(WithActor(r.Context(), *tt.actor))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestClearAuthCookie(t *testing.T) {
	w := httptest.NewRecorder()
	NewAuthMiddleware("").ClearAuthCookie(w)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, authCookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
