package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"accounts/internal/entity"
	"accounts/internal/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	user  *entity.User
	err   error
	token string
}

func (s *stubResolver) ResolveSession(_ context.Context, token string) (*entity.User, error) {
	s.token = token
	return s.user, s.err
}

func runAuth(t *testing.T, resolver SessionResolver, header string) (*httptest.ResponseRecorder, echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := AuthMiddleware{Sessions: resolver}
	handler := mw.RequireAuth(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return rec, c, handler(c)
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, status, httpErr.Code)
}

func TestRequireAuthMissingToken(t *testing.T) {
	_, _, err := runAuth(t, &stubResolver{}, "")
	requireStatus(t, err, http.StatusUnauthorized)

	_, _, err = runAuth(t, &stubResolver{}, "Basic abc")
	requireStatus(t, err, http.StatusUnauthorized)

	_, _, err = runAuth(t, nil, "Bearer token")
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestRequireAuthInvalidSession(t *testing.T) {
	_, _, err := runAuth(t, &stubResolver{err: service.ErrUnauthenticated}, "Bearer bad")
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestRequireAuthPropagatesStoreFailure(t *testing.T) {
	storeErr := errors.New("database unavailable")
	_, _, err := runAuth(t, &stubResolver{err: storeErr}, "Bearer token")
	assert.ErrorIs(t, err, storeErr)
}

func TestRequireAuthAttachesIdentity(t *testing.T) {
	user := &entity.User{ID: uuid.New(), Email: "ada@example.com"}
	resolver := &stubResolver{user: user}

	rec, c, err := runAuth(t, resolver, "bearer  the-token ")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "the-token", resolver.token)

	userID, ok := UserIDFromContext(c)
	require.True(t, ok)
	assert.Equal(t, user.ID, userID)
	fromContext, ok := UserFromContext(c)
	require.True(t, ok)
	assert.Same(t, user, fromContext)
}
