package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"accounts/internal/dto"
	"accounts/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	KindValidation      = "validation"
	KindConflict        = "conflict"
	KindUnauthenticated = "unauthenticated"
	KindUnauthorized    = "unauthorized"
	KindForbidden       = "forbidden"
	KindNotFound        = "not_found"
	KindInvalid         = "invalid"
	KindExpired         = "expired"
	KindRateLimited     = "rate_limited"
	KindUpstream        = "upstream_failure"
	KindInternal        = "internal"
)

var errMalformedBody = errors.New("request body is malformed")

type errorMapping struct {
	target error
	status int
	kind   string
}

var serviceErrors = []errorMapping{
	{service.ErrInvalidInput, http.StatusBadRequest, KindValidation},
	{service.ErrUnsupportedImage, http.StatusBadRequest, KindValidation},
	{service.ErrEmptyPassword, http.StatusBadRequest, KindValidation},
	{service.ErrConflict, http.StatusConflict, KindConflict},
	{service.ErrEmailAlreadyVerified, http.StatusConflict, KindConflict},
	{service.ErrUnauthenticated, http.StatusUnauthorized, KindUnauthenticated},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, KindUnauthorized},
	{service.ErrForbidden, http.StatusForbidden, KindForbidden},
	{service.ErrUserNotFound, http.StatusNotFound, KindNotFound},
	{service.ErrInvalidCode, http.StatusBadRequest, KindInvalid},
	{service.ErrInvalidToken, http.StatusBadRequest, KindInvalid},
	{service.ErrCodeExpired, http.StatusGone, KindExpired},
	{service.ErrUpstream, http.StatusBadGateway, KindUpstream},
}

// NewValidator reports field errors under their json names.
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return validate
}

func writeError(c echo.Context, status int, kind string, messages ...string) error {
	if messages == nil {
		messages = []string{}
	}
	return c.JSON(status, dto.ErrorResponse{Kind: kind, Messages: messages})
}

func writeValidationError(c echo.Context, err error) error {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		messages := make([]string, 0, len(fieldErrors))
		for _, fieldError := range fieldErrors {
			messages = append(messages, fieldMessage(fieldError))
		}
		return writeError(c, http.StatusBadRequest, KindValidation, messages...)
	}
	return writeError(c, http.StatusBadRequest, KindValidation, errMalformedBody.Error())
}

func fieldMessage(fieldError validator.FieldError) string {
	field := fieldError.Field()
	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fieldError.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fieldError.Param())
	default:
		return field + " is invalid"
	}
}

// writeServiceError renders known service errors with the sentinel's own
// message. Anything else is returned for HTTPErrorHandler to log.
func writeServiceError(c echo.Context, err error) error {
	for _, mapping := range serviceErrors {
		if errors.Is(err, mapping.target) {
			return writeError(c, mapping.status, mapping.kind, mapping.target.Error())
		}
	}
	return err
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return KindValidation
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusGone:
		return KindExpired
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusBadGateway:
		return KindUpstream
	}
	if status >= http.StatusInternalServerError {
		return KindInternal
	}
	return KindInvalid
}

// HTTPErrorHandler renders every error that reaches echo in the same envelope.
func HTTPErrorHandler(logger logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		kind := KindInternal
		message := "internal server error"

		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &httpErr):
			status = httpErr.Code
			kind = kindForStatus(status)
			message = fmt.Sprint(httpErr.Message)
			if status >= http.StatusInternalServerError {
				logger.WithError(err).WithField("uri", c.Request().RequestURI).Error("request failed")
				message = http.StatusText(status)
			}
		default:
			mapped := false
			for _, mapping := range serviceErrors {
				if errors.Is(err, mapping.target) {
					status, kind, message = mapping.status, mapping.kind, mapping.target.Error()
					mapped = true
					break
				}
			}
			if !mapped {
				logger.WithError(err).WithField("uri", c.Request().RequestURI).Error("unhandled error")
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = writeError(c, status, kind, message)
		}
		if err != nil {
			logger.WithError(err).Error("write error response")
		}
	}
}
