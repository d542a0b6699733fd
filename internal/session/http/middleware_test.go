package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessionService "github.com/allisson/autoapi/internal/session/service"
	sessionStore "github.com/allisson/autoapi/internal/session/store"
	sessionUseCase "github.com/allisson/autoapi/internal/session/usecase"
)

func setupAuthRouter(t *testing.T) (*gin.Engine, sessionUseCase.SessionUseCase) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := sessionStore.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })
	useCase := sessionUseCase.NewSessionUseCase(store, sessionService.NewTokenService(), time.Hour)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := gin.New()
	router.GET("/protected", AuthenticationMiddleware(useCase, logger), func(c *gin.Context) {
		subject, ok := GetSubject(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"subject": subject})
	})

	return router, useCase
}

func TestAuthenticationMiddleware(t *testing.T) {
	router, useCase := setupAuthRouter(t)

	plainToken, err := useCase.Issue(context.Background(), "user-1", time.Hour)
	require.NoError(t, err)

	t.Run("Success_ValidToken", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+plainToken)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "user-1")
	})

	t.Run("Success_CaseInsensitiveBearer", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "BEARER "+plainToken)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Failure_MissingHeader", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Failure_MalformedHeader", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Failure_EmptyToken", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer ")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Failure_UnknownToken", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer not-a-real-token")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Failure_RevokedToken", func(t *testing.T) {
		revokedToken, err := useCase.Issue(context.Background(), "user-2", time.Hour)
		require.NoError(t, err)
		require.NoError(t, useCase.Revoke(context.Background(), revokedToken))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+revokedToken)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Failure_SameResponseShape", func(t *testing.T) {
		// Missing token and unknown token produce identical response bodies.
		w1 := httptest.NewRecorder()
		req1 := httptest.NewRequest(http.MethodGet, "/protected", nil)
		router.ServeHTTP(w1, req1)

		w2 := httptest.NewRecorder()
		req2 := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req2.Header.Set("Authorization", "Bearer bogus")
		router.ServeHTTP(w2, req2)

		assert.Equal(t, w1.Code, w2.Code)
		assert.JSONEq(t, w1.Body.String(), w2.Body.String())
	})
}

func TestLoginRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := gin.New()
	router.POST("/login", LoginRateLimitMiddleware(1, 2, logger), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Burst of 2 allowed, third request rejected.
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
