package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"accounts/api/middleware"
	"accounts/internal/dto"
	"accounts/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const imageField = "image"

// AccountHandler serves the /users/:id routes. The service decides whether the
// caller may act on the account in the path.
type AccountHandler struct {
	Service        *service.AccountService
	Validate       *validator.Validate
	AvatarMaxBytes int64
}

func NewAccountHandler(svc *service.AccountService, validate *validator.Validate, avatarMaxBytes int64) *AccountHandler {
	if avatarMaxBytes <= 0 {
		avatarMaxBytes = service.DefaultAvatarMaxBytes
	}
	return &AccountHandler{
		Service:        svc,
		Validate:       validate,
		AvatarMaxBytes: avatarMaxBytes,
	}
}

func (h *AccountHandler) Logout(c echo.Context) error {
	actor, target := h.scope(c)
	if err := h.Service.Logout(c.Request().Context(), actor, target); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: "logged out"})
}

// Me returns the caller resolved from the session token.
func (h *AccountHandler) Me(c echo.Context) error {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		return writeServiceError(c, service.ErrUnauthenticated)
	}
	return c.JSON(http.StatusOK, dto.UserResponseFromEntity(user))
}

func (h *AccountHandler) Get(c echo.Context) error {
	actor, target := h.scope(c)
	user, err := h.Service.GetProfile(c.Request().Context(), actor, target)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.UserResponseFromEntity(user))
}

func (h *AccountHandler) Update(c echo.Context) error {
	actor, target := h.scope(c)

	var req dto.UpdateProfileRequest
	var image *service.ImageUpload
	if isMultipart(c) {
		req = dto.UpdateProfileRequest{
			FirstName: c.FormValue("first_name"),
			LastName:  c.FormValue("last_name"),
			Email:     c.FormValue("email"),
			Phone:     c.FormValue("phone"),
		}
		var err error
		image, err = h.readImage(c)
		if err != nil {
			return writeServiceError(c, err)
		}
	} else if err := decodeJSON(c, &req); err != nil {
		return writeValidationError(c, err)
	}
	if err := validatePayload(h.Validate, req); err != nil {
		return writeValidationError(c, err)
	}

	input := service.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Image:     image,
	}
	user, err := h.Service.UpdateProfile(c.Request().Context(), actor, target, input)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.UserResponseFromEntity(user))
}

func (h *AccountHandler) UploadAvatar(c echo.Context) error {
	actor, target := h.scope(c)
	image, err := h.readImage(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	if image == nil {
		return writeError(c, http.StatusBadRequest, KindValidation, imageField+" is required")
	}
	user, err := h.Service.UploadAvatar(c.Request().Context(), actor, target, image)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.UserResponseFromEntity(user))
}

func (h *AccountHandler) ChangePassword(c echo.Context) error {
	actor, target := h.scope(c)
	var req dto.ChangePasswordRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeValidationError(c, err)
	}
	if err := validatePayload(h.Validate, req); err != nil {
		return writeValidationError(c, err)
	}
	input := service.ChangePasswordInput{OldPassword: req.OldPassword, NewPassword: req.NewPassword}
	user, err := h.Service.ChangePassword(c.Request().Context(), actor, target, input)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.UserResponseFromEntity(user))
}

func (h *AccountHandler) RequestVerification(c echo.Context) error {
	actor, target := h.scope(c)
	if err := h.Service.RequestEmailVerification(c.Request().Context(), actor, target); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.MessageResponse{Message: "verification email sent"})
}

func (h *AccountHandler) Delete(c echo.Context) error {
	actor, target := h.scope(c)
	if err := h.Service.DeleteAccount(c.Request().Context(), actor, target); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AccountHandler) Export(c echo.Context) error {
	actor, target := h.scope(c)
	export, err := h.Service.DownloadAccountData(c.Request().Context(), actor, target)
	if err != nil {
		return writeServiceError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", export.Filename))
	return c.JSON(http.StatusOK, dto.AccountExportFromEntities(export.User, export.Events))
}

// scope returns the authenticated caller and the account named in the path. An
// unparsable id yields uuid.Nil, which no caller owns.
func (h *AccountHandler) scope(c echo.Context) (service.Actor, uuid.UUID) {
	actor := service.Actor{IPAddress: stringPtr(c.RealIP())}
	if userID, ok := middleware.UserIDFromContext(c); ok {
		actor.UserID = userID
	}
	target, err := uuid.Parse(c.Param("id"))
	if err != nil {
		target = uuid.Nil
	}
	return actor, target
}

func (h *AccountHandler) readImage(c echo.Context) (*service.ImageUpload, error) {
	header, err := c.FormFile(imageField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", service.ErrInvalidInput, err)
	}
	if header.Size > h.AvatarMaxBytes {
		return nil, service.ErrUnsupportedImage
	}
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.AvatarMaxBytes+1))
	if err != nil {
		return nil, err
	}
	return &service.ImageUpload{Filename: header.Filename, Data: data}, nil
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}
