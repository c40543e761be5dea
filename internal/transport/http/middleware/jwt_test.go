package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"docuchat/internal/pkg/jwtutil"
)

type staticRevocations struct {
	revoked map[string]bool
}

func (s *staticRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	return s.revoked[jti], nil
}

func newAuthRouter(secret string, revocations RevocationChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthJWT(secret, revocations), func(c *gin.Context) {
		userID, _ := c.Get(ContextUserIDKey)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func doRequest(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthJWT_AcceptsValidToken(t *testing.T) {
	token, err := jwtutil.GenerateToken("secret", time.Minute, 7, "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	router := newAuthRouter("secret", &staticRevocations{revoked: map[string]bool{}})

	w := doRequest(router, "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuthJWT_RejectsMissingHeader(t *testing.T) {
	router := newAuthRouter("secret", &staticRevocations{revoked: map[string]bool{}})
	if w := doRequest(router, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthJWT_RejectsWrongScheme(t *testing.T) {
	router := newAuthRouter("secret", &staticRevocations{revoked: map[string]bool{}})
	if w := doRequest(router, "Basic abc"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthJWT_RejectsBadToken(t *testing.T) {
	router := newAuthRouter("secret", &staticRevocations{revoked: map[string]bool{}})
	if w := doRequest(router, "Bearer not.a.token"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthJWT_RejectsRevokedToken(t *testing.T) {
	token, err := jwtutil.GenerateToken("secret", time.Minute, 7, "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	claims, err := jwtutil.ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}

	router := newAuthRouter("secret", &staticRevocations{revoked: map[string]bool{claims.ID: true}})
	if w := doRequest(router, "Bearer "+token); w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token must be rejected, got %d", w.Code)
	}
}
