package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"accounts/api/handler"
	"accounts/api/middleware"
	"accounts/api/routes"
	"accounts/internal/dto"
	"accounts/internal/repository"
	"accounts/internal/service"
	"accounts/internal/utils"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	resetCodePattern  = regexp.MustCompile(`font-weight:bold">([A-Z0-9]+)</p>`)
	verifyLinkPattern = regexp.MustCompile(`/auth/verify-email/([^"]+)"`)
	pngBytes          = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
)

type inbox struct {
	mutex sync.Mutex
	mail  map[string][]string
}

func (i *inbox) Send(_ context.Context, to string, _ string, htmlBody string) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.mail[to] = append(i.mail[to], htmlBody)
	return nil
}

func (i *inbox) last(t *testing.T, to string, pattern *regexp.Regexp) string {
	t.Helper()
	i.mutex.Lock()
	defer i.mutex.Unlock()
	messages := i.mail[to]
	require.NotEmpty(t, messages, "no mail for %s", to)
	match := pattern.FindStringSubmatch(messages[len(messages)-1])
	require.Len(t, match, 2)
	return match[1]
}

type memoryObjects struct {
	mutex   sync.Mutex
	objects map[string]bool
}

func (m *memoryObjects) Upload(_ context.Context, key string, _ []byte, _ string) (service.StoredObject, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.objects[key] = true
	return service.StoredObject{URL: "https://cdn.test/" + key, ID: key}, nil
}

func (m *memoryObjects) Destroy(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.objects, key)
	return nil
}

type testServer struct {
	echo    *echo.Echo
	service *service.AccountService
	inbox   *inbox
	hook    *test.Hook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()
	mail := &inbox{mail: map[string][]string{}}
	svc := service.NewAccountService(
		repository.NewMemoryUserRepository(),
		repository.NewMemorySecurityLogRepository(),
		mail,
		&memoryObjects{objects: map[string]bool{}},
		service.BcryptPasswordHasher{Cost: bcrypt.MinCost},
		service.JWTTokenIssuer{Manager: &utils.JWTManager{Secret: []byte("handler-test")}},
		service.RealClock{},
		service.AccountConfig{AppBaseURL: "http://localhost"},
		logger,
	)

	e := echo.New()
	e.HTTPErrorHandler = handler.HTTPErrorHandler(logger)
	validate := handler.NewValidator()
	unlimited := middleware.NewRateLimiter(rate.Inf, 0, 0)
	router := routes.NewRouter(
		e,
		handler.NewAuthHandler(svc, validate),
		handler.NewAccountHandler(svc, validate, 0),
		middleware.AuthMiddleware{Sessions: svc},
		unlimited,
		unlimited,
	)
	router.RegisterRoutes()
	return &testServer{echo: e, service: svc, inbox: mail, hook: hook}
}

func (s *testServer) do(t *testing.T, method string, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, email string) dto.AuthResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      email,
		"password":   "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	s.service.Wait()

	var response dto.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var response dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response), rec.Body.String())
	return response
}

func forbiddenFields(t *testing.T, body []byte) {
	t.Helper()
	raw := string(body)
	for _, field := range []string{"password", "reset_code", "pending_verification", "avatar_object_id", "$2a$"} {
		assert.NotContains(t, raw, field)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	registered := s.register(t, "ada@example.com")

	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, int64(604800), registered.ExpiresIn)
	assert.Equal(t, "ada@example.com", registered.User.Email)
	assert.False(t, registered.User.EmailVerified)

	rec := s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	forbiddenFields(t, rec.Body.Bytes())

	rec = s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, handler.KindUnauthorized, decodeError(t, rec).Kind)

	rec = s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"first_name": "Ada", "email": "ada@example.com", "password": "secret1",
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.KindConflict, decodeError(t, rec).Kind)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "not-an-email", "password": "123"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	response := decodeError(t, rec)
	assert.Equal(t, handler.KindValidation, response.Kind)
	assert.Contains(t, response.Messages, "first_name is required")
	assert.Contains(t, response.Messages, "email must be a valid email address")
	assert.Contains(t, response.Messages, "password must be at least 6 characters")

	rec = s.do(t, http.MethodPost, "/auth/register", map[string]string{"unexpected": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"request body is malformed"}, decodeError(t, rec).Messages)
}

func TestPasswordResetOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/auth/password/forgot", map[string]string{"email": "ada@example.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	code := s.inbox.last(t, "ada@example.com", resetCodePattern)
	assert.NotContains(t, rec.Body.String(), code)

	rec = s.do(t, http.MethodPost, "/auth/password/forgot", map[string]string{"email": "nobody@example.com"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/password/validate", map[string]string{"email": "ada@example.com", "code": "ZZZZZZ"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.KindInvalid, decodeError(t, rec).Kind)

	rec = s.do(t, http.MethodPost, "/auth/password/validate", map[string]string{"email": "ada@example.com", "code": code}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	reset := map[string]string{"email": "ada@example.com", "code": code, "new_password": "brand-new"}
	rec = s.do(t, http.MethodPost, "/auth/password/reset", reset, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/password/reset", reset, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": "brand-new"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyEmailOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ada@example.com")
	token := s.inbox.last(t, "ada@example.com", verifyLinkPattern)

	rec := s.do(t, http.MethodGet, "/auth/verify-email/"+token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": token}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.KindInvalid, decodeError(t, rec).Kind)
}

func TestSelfScopedRoutes(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "ada@example.com")
	eve := s.register(t, "eve@example.com")
	adaPath := "/users/" + ada.User.ID

	rec := s.do(t, http.MethodGet, adaPath, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, handler.KindUnauthenticated, decodeError(t, rec).Kind)

	rec = s.do(t, http.MethodGet, adaPath, nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, adaPath, nil, eve.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, handler.KindForbidden, decodeError(t, rec).Kind)

	rec = s.do(t, http.MethodGet, "/users/not-a-uuid", nil, ada.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, adaPath, nil, ada.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	forbiddenFields(t, rec.Body.Bytes())

	rec = s.do(t, http.MethodPut, adaPath, map[string]string{"last_name": "Byron"}, ada.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var user dto.UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "Ada Byron", user.FullName)

	rec = s.do(t, http.MethodPut, adaPath+"/password", map[string]string{"old_password": "wrong", "new_password": "brand-new"}, ada.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, adaPath+"/verification", nil, ada.Token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, adaPath+"/logout", nil, ada.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMeReturnsCaller(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "ada@example.com")

	rec := s.do(t, http.MethodGet, "/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, handler.KindUnauthenticated, decodeError(t, rec).Kind)

	rec = s.do(t, http.MethodGet, "/auth/me", nil, ada.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	forbiddenFields(t, rec.Body.Bytes())
	var user dto.UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, ada.User.ID, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
}

func TestAvatarUploadMultipart(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "ada@example.com")

	upload := func(data []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("image", "me.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, writer.WriteField("first_name", "Augusta"))
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPut, "/users/"+ada.User.ID, &body)
		req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+ada.Token)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		return rec
	}

	rec := upload(pngBytes)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user dto.UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "Augusta", user.FirstName)
	require.NotNil(t, user.AvatarURL)
	assert.True(t, strings.HasPrefix(*user.AvatarURL, "https://cdn.test/avatars/"))
	forbiddenFields(t, rec.Body.Bytes())

	rec = upload([]byte("plain text is not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.KindValidation, decodeError(t, rec).Kind)

	rec = s.do(t, http.MethodPut, "/users/"+ada.User.ID+"/avatar", nil, ada.Token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"image is required"}, decodeError(t, rec).Messages)
}

func TestExportAndDelete(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "ada@example.com")
	path := "/users/" + ada.User.ID

	rec := s.do(t, http.MethodGet, path+"/export", nil, ada.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="ada@example.com.json"`, rec.Header().Get(echo.HeaderContentDisposition))
	forbiddenFields(t, rec.Body.Bytes())
	var export dto.AccountExportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	assert.Equal(t, "ada@example.com", export.User.Email)

	rec = s.do(t, http.MethodDelete, path, nil, ada.Token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// the session no longer resolves to an account
	rec = s.do(t, http.MethodDelete, path, nil, ada.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPErrorHandlerHidesInternalErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := echo.New()
	e.HTTPErrorHandler = handler.HTTPErrorHandler(logger)
	e.GET("/boom", func(c echo.Context) error { return assertError("dsn=postgres://secret") })
	e.GET("/gone", func(c echo.Context) error { return service.ErrCodeExpired })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	var response dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, handler.KindInternal, response.Kind)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gone", nil))
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, handler.KindNotFound, response.Kind)
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestRequestsAreBoundedByRateLimiter(t *testing.T) {
	s := newTestServer(t)
	limited := middleware.NewRateLimiter(rate.Every(time.Hour), 1, time.Hour)
	s.echo.POST("/limited", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, limited.Middleware())

	rec := s.do(t, http.MethodPost, "/limited", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/limited", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, handler.KindRateLimited, decodeError(t, rec).Kind)
}
