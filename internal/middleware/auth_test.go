package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/ambulance-sim/internal/auth"
	"github.com/ukydev/ambulance-sim/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func tokenFor(t *testing.T, service *auth.Service, role models.Role) string {
	t.Helper()
	token, _, err := service.GenerateToken(&models.User{
		ID:       primitive.NewObjectID(),
		Username: "user-" + string(role),
		Role:     role,
	})
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	middleware := NewAuthMiddleware(authService)

	t.Run("valid token", func(t *testing.T) {
		token := tokenFor(t, authService, models.RoleDispatcher)

		req := httptest.NewRequest("GET", "/api/vehicles", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			claims, ok := GetUserFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, "user-dispatcher", claims.Username)
			assert.Equal(t, models.RoleDispatcher, claims.Role)
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	rejected := []struct {
		name   string
		header string
	}{
		{"missing authorization header", ""},
		{"malformed header", "Token abc"},
		{"invalid token", "Bearer invalid-token"},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/vehicles", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			middleware.Authenticate(handler).ServeHTTP(w, req)
			assert.False(t, handlerCalled)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	for _, path := range []string{"/api/auth/login", "/health", "/metrics"} {
		t.Run("skip auth "+path, func(t *testing.T) {
			req := httptest.NewRequest("GET", path, nil)
			w := httptest.NewRecorder()

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			middleware.Authenticate(handler).ServeHTTP(w, req)
			assert.True(t, handlerCalled)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestAuthMiddleware_RequirePermission(t *testing.T) {
	authService := auth.NewService("test-secret", time.Hour)
	middleware := NewAuthMiddleware(authService)

	cases := []struct {
		role models.Role
		want int
	}{
		{models.RoleAdmin, http.StatusOK},
		{models.RoleDispatcher, http.StatusOK},
		{models.RoleViewer, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			req := httptest.NewRequest("PUT", "/api/vehicles/abc/route", nil)
			req.Header.Set("Authorization", "Bearer "+tokenFor(t, authService, tc.role))
			w := httptest.NewRecorder()

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			chain := middleware.Authenticate(middleware.RequirePermission(models.PermissionAssignRoute)(handler))
			chain.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	t.Run("no user context", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/api/vehicles/abc/route", nil)
		w := httptest.NewRecorder()

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
		middleware.RequirePermission(models.PermissionAssignRoute)(handler).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetUserFromContext(t *testing.T) {
	claims := &models.Claims{
		UserID:   "123",
		Username: "testuser",
		Role:     models.RoleAdmin,
	}

	ctx := context.WithValue(context.Background(), UserContextKey, claims)
	retrieved, ok := GetUserFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, claims, retrieved)

	_, ok = GetUserFromContext(context.Background())
	assert.False(t, ok)
}
