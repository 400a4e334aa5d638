package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"accounts/internal/dto"
	"accounts/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// AuthHandler serves the unauthenticated credential flows.
type AuthHandler struct {
	Service  *service.AccountService
	Validate *validator.Validate
}

func NewAuthHandler(svc *service.AccountService, validate *validator.Validate) *AuthHandler {
	return &AuthHandler{
		Service:  svc,
		Validate: validate,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req dto.RegisterRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeValidationError(c, err)
	}
	if err := h.validate(req); err != nil {
		return writeValidationError(c, err)
	}
	input := service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
		IPAddress: stringPtr(c.RealIP()),
	}
	result, err := h.Service.Register(c.Request().Context(), input)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, mapAuthResponse(result))
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeValidationError(c, err)
	}
	if err := h.validate(req); err != nil {
		return writeValidationError(c, err)
	}
	input := service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: stringPtr(c.RealIP()),
	}
	result, err := h.Service.Login(c.Request().Context(), input)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, mapAuthResponse(result))
}

func (h *AuthHandler) PasswordForgot(c echo.Context) error {
	var req dto.PasswordForgotRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeValidationError(c, err)
	}
	if err := h.validate(req); err != nil {
		return writeValidationError(c, err)
	}
	if err := h.Service.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: "a reset code has been sent to your email"})
}

func (h *AuthHandler) PasswordValidate(c echo.Context) error {
	var req dto.ResetCodeRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeValidationError(c, err)
	}
	if err := h.validate(req); err != nil {
		return writeValidationError(c, err)
	}
	if err := h.Service.ValidateResetCode(c.Request().Context(), req.Email, req.Code); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: "reset code is valid"})
}

func (h *AuthHandler) PasswordReset(c echo.Context) error {
	var req dto.PasswordResetRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeValidationError(c, err)
	}
	if err := h.validate(req); err != nil {
		return writeValidationError(c, err)
	}
	input := service.ResetPasswordInput{Email: req.Email, Code: req.Code, NewPassword: req.NewPassword}
	if err := h.Service.ResetPassword(c.Request().Context(), input); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: "password has been reset"})
}

// VerifyEmail accepts the token as a path parameter (the emailed link) or in a
// JSON body.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		var req dto.VerifyEmailRequest
		if err := decodeJSON(c, &req); err != nil {
			return writeValidationError(c, err)
		}
		if err := h.validate(req); err != nil {
			return writeValidationError(c, err)
		}
		token = req.Token
	}
	if err := h.Service.VerifyEmail(c.Request().Context(), token); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: "email verified"})
}

func (h *AuthHandler) validate(payload any) error {
	return validatePayload(h.Validate, payload)
}

func validatePayload(validate *validator.Validate, payload any) error {
	if validate == nil {
		return nil
	}
	return validate.Struct(payload)
}

func decodeJSON(c echo.Context, target any) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func stringPtr(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func mapAuthResponse(result *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		Token:     result.Token,
		ExpiresIn: result.ExpiresIn,
		User:      dto.UserResponseFromEntity(result.User),
	}
}
