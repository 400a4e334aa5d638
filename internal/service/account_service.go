package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"accounts/internal/entity"
	"accounts/internal/repository"
	"accounts/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const exportEventLimit = 200

type AccountService struct {
	users        repository.UserRepository
	securityLogs repository.SecurityLogRepository

	mailer       Mailer
	objects      ObjectStore
	passwordHash PasswordHasher
	tokens       TokenIssuer
	clock        Clock
	config       AccountConfig
	logger       logrus.FieldLogger

	background sync.WaitGroup
	dummyOnce  sync.Once
	dummyHash  string
}

func NewAccountService(
	users repository.UserRepository,
	securityLogs repository.SecurityLogRepository,
	mailer Mailer,
	objects ObjectStore,
	passwordHash PasswordHasher,
	tokens TokenIssuer,
	clock Clock,
	config AccountConfig,
	logger logrus.FieldLogger,
) *AccountService {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(nopWriter{})
		logger = discard
	}
	return &AccountService{
		users:        users,
		securityLogs: securityLogs,
		mailer:       mailer,
		objects:      objects,
		passwordHash: passwordHash,
		tokens:       tokens,
		clock:        clock,
		config:       config,
		logger:       logger,
	}
}

// Wait blocks until background mail dispatches have finished.
func (s *AccountService) Wait() {
	s.background.Wait()
}

func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	email := utils.NormalizeEmail(input.Email)
	if firstName == "" || email == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}
	phone := optionalString(input.Phone)

	existing, err := s.users.FindByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict
	}

	hash, err := s.passwordHash.Hash(input.Password)
	if err != nil {
		return nil, err
	}
	verificationToken, verificationHash, err := s.newEmailVerification()
	if err != nil {
		return nil, err
	}

	avatar := utils.GravatarURL(email)
	user := &entity.User{
		ID:                       uuid.New(),
		FirstName:                firstName,
		LastName:                 lastName,
		FullName:                 entity.BuildFullName(firstName, lastName),
		Email:                    email,
		Phone:                    phone,
		PasswordHash:             hash,
		AvatarURL:                &avatar,
		PendingVerificationToken: &verificationHash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}

	result, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}

	s.logSecurity(ctx, &user.ID, input.IPAddress, entity.Registered, nil)
	s.dispatchInBackground(ctx, user.Email, verificationMessage(user.FirstName, s.verificationLink(verificationToken), "Welcome"))
	return result, nil
}

func (s *AccountService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	email := utils.NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = s.passwordHash.Verify(s.dummyPasswordHash(), input.Password)
		s.logSecurity(ctx, nil, input.IPAddress, entity.LoginFailed, map[string]any{"email": email})
		return nil, ErrInvalidCredentials
	}
	if !s.passwordHash.Verify(user.PasswordHash, input.Password) {
		s.logSecurity(ctx, &user.ID, input.IPAddress, entity.LoginFailed, map[string]any{"email": email})
		return nil, ErrInvalidCredentials
	}

	result, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}
	s.logSecurity(ctx, &user.ID, input.IPAddress, entity.LoginSuccess, nil)
	return result, nil
}

// ResolveSession maps a bearer session token to the identity it was issued for.
func (s *AccountService) ResolveSession(ctx context.Context, token string) (*entity.User, error) {
	userID, err := s.tokens.ParseSession(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

func (s *AccountService) Logout(ctx context.Context, actor Actor, targetID uuid.UUID) error {
	if err := authorize(actor, targetID); err != nil {
		return err
	}
	s.logSecurity(ctx, &actor.UserID, actor.IPAddress, entity.Logout, nil)
	return nil
}

func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	code, err := utils.GenerateResetCode(s.resetCodeLength())
	if err != nil {
		return err
	}
	codeHash := utils.HashToken(code)
	expiresAt := s.now().Add(s.resetCodeTTL())
	rows, err := s.users.Update(ctx, user.ID, repository.UserUpdate{
		ResetCodeHash:      &codeHash,
		ResetCodeExpiresAt: &expiresAt,
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	if err := s.send(ctx, user.Email, resetCodeMessage(user.FirstName, code, s.resetCodeTTL())); err != nil {
		return err
	}
	s.logSecurity(ctx, &user.ID, nil, entity.PasswordResetRequested, nil)
	return nil
}

func (s *AccountService) ValidateResetCode(ctx context.Context, email string, code string) error {
	_, err := s.checkResetCode(ctx, email, code)
	return err
}

func (s *AccountService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	if input.NewPassword == "" {
		return ErrInvalidInput
	}
	user, err := s.checkResetCode(ctx, input.Email, input.Code)
	if err != nil {
		return err
	}

	hash, err := s.passwordHash.Hash(input.NewPassword)
	if err != nil {
		return err
	}
	rows, err := s.users.ConsumeResetCode(ctx, user.Email, *user.ResetCodeHash, s.now(), hash)
	if err != nil {
		return err
	}
	if rows == 0 {
		// consumed or replaced by a concurrent request
		return ErrInvalidCode
	}
	s.logSecurity(ctx, &user.ID, nil, entity.PasswordReset, nil)
	return nil
}

func (s *AccountService) ChangePassword(ctx context.Context, actor Actor, targetID uuid.UUID, input ChangePasswordInput) (*entity.User, error) {
	if err := authorize(actor, targetID); err != nil {
		return nil, err
	}
	if input.OldPassword == "" || input.NewPassword == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.findUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !s.passwordHash.Verify(user.PasswordHash, input.OldPassword) {
		return nil, ErrInvalidCredentials
	}

	hash, err := s.passwordHash.Hash(input.NewPassword)
	if err != nil {
		return nil, err
	}
	if err := s.updateOne(ctx, user.ID, repository.UserUpdate{PasswordHash: &hash}); err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	s.logSecurity(ctx, &user.ID, actor.IPAddress, entity.PasswordChanged, nil)
	return user, nil
}

func (s *AccountService) RequestEmailVerification(ctx context.Context, actor Actor, targetID uuid.UUID) error {
	if err := authorize(actor, targetID); err != nil {
		return err
	}
	user, err := s.findUser(ctx, targetID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return ErrEmailAlreadyVerified
	}

	token, tokenHash, err := s.newEmailVerification()
	if err != nil {
		return err
	}
	if err := s.updateOne(ctx, user.ID, repository.UserUpdate{PendingVerificationToken: &tokenHash}); err != nil {
		return err
	}
	if err := s.send(ctx, user.Email, verificationMessage(user.FirstName, s.verificationLink(token), "You requested a verification email")); err != nil {
		return err
	}
	s.logSecurity(ctx, &user.ID, actor.IPAddress, entity.EmailVerificationRequested, nil)
	return nil
}

func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	secret, err := s.tokens.ParseEmailVerification(token)
	if err != nil {
		return ErrInvalidToken
	}

	tokenHash := utils.HashToken(secret)
	user, err := s.users.FindByPendingVerificationToken(ctx, tokenHash)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidToken
	}
	rows, err := s.users.MarkEmailVerified(ctx, tokenHash)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInvalidToken
	}
	s.logSecurity(ctx, &user.ID, nil, entity.EmailVerified, nil)
	return nil
}

func (s *AccountService) GetProfile(ctx context.Context, actor Actor, targetID uuid.UUID) (*entity.User, error) {
	if err := authorize(actor, targetID); err != nil {
		return nil, err
	}
	return s.findUser(ctx, targetID)
}

// UpdateProfile merges the non-empty fields of input into the account. A changed
// email resets the verified flag and starts a new verification. A new image is
// stored before the old one is released.
func (s *AccountService) UpdateProfile(ctx context.Context, actor Actor, targetID uuid.UUID, input UpdateProfileInput) (*entity.User, error) {
	if err := authorize(actor, targetID); err != nil {
		return nil, err
	}
	user, err := s.findUser(ctx, targetID)
	if err != nil {
		return nil, err
	}

	var update repository.UserUpdate
	changed := []string{}

	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	if firstName != "" && firstName != user.FirstName {
		update.FirstName = &firstName
		changed = append(changed, "first_name")
	} else {
		firstName = user.FirstName
	}
	if lastName != "" && lastName != user.LastName {
		update.LastName = &lastName
		changed = append(changed, "last_name")
	} else {
		lastName = user.LastName
	}
	if update.FirstName != nil || update.LastName != nil {
		fullName := entity.BuildFullName(firstName, lastName)
		update.FullName = &fullName
	}

	email := utils.NormalizeEmail(input.Email)
	emailChanged := email != "" && email != user.Email
	phone := strings.TrimSpace(input.Phone)
	phoneChanged := phone != "" && (user.Phone == nil || *user.Phone != phone)
	if emailChanged || phoneChanged {
		var checkEmail string
		var checkPhone *string
		if emailChanged {
			checkEmail = email
		}
		if phoneChanged {
			checkPhone = &phone
		}
		existing, err := s.users.FindByEmailOrPhone(ctx, checkEmail, checkPhone)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != user.ID {
			return nil, ErrConflict
		}
	}

	var verificationToken string
	if emailChanged {
		token, tokenHash, err := s.newEmailVerification()
		if err != nil {
			return nil, err
		}
		verified := false
		verificationToken = token
		update.Email = &email
		update.EmailVerified = &verified
		update.PendingVerificationToken = &tokenHash
		changed = append(changed, "email")
	}
	if phoneChanged {
		update.Phone = &phone
		changed = append(changed, "phone")
	}

	var uploaded *StoredObject
	if input.Image != nil {
		object, err := s.uploadAvatar(ctx, user.ID, input.Image)
		if err != nil {
			return nil, err
		}
		uploaded = &object
		update.AvatarURL = &object.URL
		update.AvatarObjectID = &object.ID
		changed = append(changed, "avatar")
	}

	if update.IsEmpty() {
		return user, nil
	}
	if err := s.updateOne(ctx, user.ID, update); err != nil {
		if uploaded != nil {
			s.destroyQuietly(ctx, uploaded.ID)
		}
		return nil, err
	}
	if uploaded != nil && user.HasAvatarObject() {
		s.destroyQuietly(ctx, *user.AvatarObjectID)
	}

	if emailChanged {
		s.dispatchInBackground(ctx, email, verificationMessage(firstName, s.verificationLink(verificationToken), "You updated your email address"))
		s.dispatchInBackground(ctx, user.Email, emailChangedNotice(firstName, email))
	}

	action := entity.ProfileUpdated
	if len(changed) == 1 && uploaded != nil {
		action = entity.AvatarUpdated
	}
	s.logSecurity(ctx, &user.ID, actor.IPAddress, action, map[string]any{"fields": changed})

	return s.findUser(ctx, user.ID)
}

func (s *AccountService) UploadAvatar(ctx context.Context, actor Actor, targetID uuid.UUID, image *ImageUpload) (*entity.User, error) {
	if err := authorize(actor, targetID); err != nil {
		return nil, err
	}
	if image == nil || len(image.Data) == 0 {
		return nil, ErrInvalidInput
	}
	return s.UpdateProfile(ctx, actor, targetID, UpdateProfileInput{Image: image})
}

func (s *AccountService) DeleteAccount(ctx context.Context, actor Actor, targetID uuid.UUID) error {
	if err := authorize(actor, targetID); err != nil {
		return err
	}
	user, err := s.findUser(ctx, targetID)
	if err != nil {
		return err
	}

	if user.HasAvatarObject() {
		if err := s.destroy(ctx, *user.AvatarObjectID); err != nil {
			return err
		}
	}

	rows, err := s.users.Delete(ctx, user.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	// the row is gone, so the log entry cannot reference it
	s.logSecurity(ctx, nil, actor.IPAddress, entity.AccountDeleted, map[string]any{"user_id": user.ID.String()})
	return nil
}

func (s *AccountService) DownloadAccountData(ctx context.Context, actor Actor, targetID uuid.UUID) (*AccountExport, error) {
	if err := authorize(actor, targetID); err != nil {
		return nil, err
	}
	user, err := s.findUser(ctx, targetID)
	if err != nil {
		return nil, err
	}

	var events []entity.SecurityLog
	if s.securityLogs != nil {
		events, err = s.securityLogs.ListByUser(ctx, user.ID, exportEventLimit)
		if err != nil {
			return nil, err
		}
	}
	s.logSecurity(ctx, &user.ID, actor.IPAddress, entity.AccountExported, nil)

	return &AccountExport{
		Filename: user.Email + ".json",
		User:     user,
		Events:   events,
	}, nil
}

func authorize(actor Actor, targetID uuid.UUID) error {
	if actor.UserID == uuid.Nil || actor.UserID != targetID {
		return ErrForbidden
	}
	return nil
}

func (s *AccountService) checkResetCode(ctx context.Context, email string, code string) (*entity.User, error) {
	email = utils.NormalizeEmail(email)
	code = utils.NormalizeResetCode(code)
	if email == "" || code == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.ResetCodeHash == nil || subtle.ConstantTimeCompare([]byte(*user.ResetCodeHash), []byte(utils.HashToken(code))) != 1 {
		return nil, ErrInvalidCode
	}
	if user.ResetCodeExpiresAt == nil || s.now().After(*user.ResetCodeExpiresAt) {
		return nil, ErrCodeExpired
	}
	return user, nil
}

func (s *AccountService) findUser(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AccountService) updateOne(ctx context.Context, id uuid.UUID, update repository.UserUpdate) error {
	rows, err := s.users.Update(ctx, id, update)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrConflict
		}
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *AccountService) issueSession(user *entity.User) (*AuthResult, error) {
	token, expiresIn, err := s.tokens.IssueSession(user.ID.String())
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:     token,
		ExpiresIn: int64(expiresIn.Seconds()),
		User:      user,
	}, nil
}

// newEmailVerification returns the signed token for the email link and the hash
// of its secret, which is what gets stored on the user.
func (s *AccountService) newEmailVerification() (string, string, error) {
	secret, err := utils.GenerateRandomToken(32)
	if err != nil {
		return "", "", err
	}
	token, _, err := s.tokens.IssueEmailVerification(secret)
	if err != nil {
		return "", "", err
	}
	return token, utils.HashToken(secret), nil
}

func (s *AccountService) verificationLink(token string) string {
	return strings.TrimRight(s.config.AppBaseURL, "/") + "/auth/verify-email/" + token
}

func (s *AccountService) uploadAvatar(ctx context.Context, userID uuid.UUID, image *ImageUpload) (StoredObject, error) {
	contentType, extension, err := detectAvatarType(image.Data, s.avatarMaxBytes())
	if err != nil {
		return StoredObject{}, err
	}
	if s.objects == nil {
		return StoredObject{}, fmt.Errorf("%w: %w", ErrUpstream, ErrStorageDisabled)
	}

	ctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout())
	defer cancel()
	object, err := s.objects.Upload(ctx, avatarObjectKey(userID, s.now(), extension), image.Data, contentType)
	if err != nil {
		return StoredObject{}, fmt.Errorf("%w: upload avatar: %w", ErrUpstream, err)
	}
	return object, nil
}

func (s *AccountService) destroy(ctx context.Context, objectID string) error {
	if s.objects == nil {
		return fmt.Errorf("%w: %w", ErrUpstream, ErrStorageDisabled)
	}
	ctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout())
	defer cancel()
	if err := s.objects.Destroy(ctx, objectID); err != nil {
		return fmt.Errorf("%w: destroy avatar: %w", ErrUpstream, err)
	}
	return nil
}

func (s *AccountService) destroyQuietly(ctx context.Context, objectID string) {
	if err := s.destroy(ctx, objectID); err != nil {
		s.logger.WithError(err).WithField("object_id", objectID).Warn("avatar object left behind")
	}
}

func (s *AccountService) send(ctx context.Context, to string, message mailMessage) error {
	if s.mailer == nil {
		return fmt.Errorf("%w: mailer not configured", ErrUpstream)
	}
	ctx, cancel := context.WithTimeout(ctx, s.upstreamTimeout())
	defer cancel()
	if err := s.mailer.Send(ctx, to, message.Subject, message.HTML); err != nil {
		return fmt.Errorf("%w: send mail: %w", ErrUpstream, err)
	}
	return nil
}

func (s *AccountService) dispatchInBackground(ctx context.Context, to string, message mailMessage) {
	if s.mailer == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if err := s.send(ctx, to, message); err != nil {
			s.logger.WithError(err).WithField("subject", message.Subject).Warn("background mail dispatch failed")
		}
	}()
}

func (s *AccountService) logSecurity(
	ctx context.Context,
	userID *uuid.UUID,
	ipAddress *string,
	action entity.SecurityAction,
	metadata map[string]any,
) {
	if s.securityLogs == nil {
		return
	}
	var payload datatypes.JSON
	if metadata != nil {
		bytes, err := json.Marshal(metadata)
		if err != nil {
			s.logger.WithError(err).WithField("action", action).Warn("security log metadata")
			return
		}
		payload = datatypes.JSON(bytes)
	}

	log := &entity.SecurityLog{
		UserID:    userID,
		IPAddress: ipAddress,
		Action:    action,
		Metadata:  payload,
	}
	if err := s.securityLogs.Log(ctx, log); err != nil {
		s.logger.WithError(err).WithField("action", action).Warn("security log write failed")
	}
}

func (s *AccountService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.passwordHash.Hash("not-a-real-password")
		if err != nil {
			s.logger.WithError(err).Error("dummy password hash")
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *AccountService) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

func (s *AccountService) resetCodeTTL() time.Duration {
	if s.config.ResetCodeTTL > 0 {
		return s.config.ResetCodeTTL
	}
	return time.Hour
}

func (s *AccountService) resetCodeLength() int {
	if s.config.ResetCodeLength > 0 {
		return s.config.ResetCodeLength
	}
	return 6
}

func (s *AccountService) upstreamTimeout() time.Duration {
	if s.config.UpstreamTimeout > 0 {
		return s.config.UpstreamTimeout
	}
	return 10 * time.Second
}

func (s *AccountService) avatarMaxBytes() int64 {
	if s.config.AvatarMaxBytes > 0 {
		return s.config.AvatarMaxBytes
	}
	return DefaultAvatarMaxBytes
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
