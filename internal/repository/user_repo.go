package repository

import (
	"context"
	"errors"
	"time"

	"accounts/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository is the identity store. Mutations aimed at a single record report
// the number of rows they touched so callers can tell "not found" from success.
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByEmailOrPhone(ctx context.Context, email string, phone *string) (*entity.User, error)
	FindByPendingVerificationToken(ctx context.Context, tokenHash string) (*entity.User, error)
	Update(ctx context.Context, id uuid.UUID, update UserUpdate) (int64, error)
	ConsumeResetCode(ctx context.Context, email string, codeHash string, now time.Time, passwordHash string) (int64, error)
	MarkEmailVerified(ctx context.Context, tokenHash string) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *entity.User) error {
	return translateError(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.first(r.db.WithContext(ctx).Where("email = ?", email))
}

func (r *userRepository) FindByEmailOrPhone(ctx context.Context, email string, phone *string) (*entity.User, error) {
	query := r.db.WithContext(ctx)
	switch {
	case email != "" && phone != nil:
		query = query.Where("email = ? OR phone = ?", email, *phone)
	case email != "":
		query = query.Where("email = ?", email)
	case phone != nil:
		query = query.Where("phone = ?", *phone)
	default:
		return nil, nil
	}
	return r.first(query)
}

func (r *userRepository) FindByPendingVerificationToken(ctx context.Context, tokenHash string) (*entity.User, error) {
	if tokenHash == "" {
		return nil, nil
	}
	return r.first(r.db.WithContext(ctx).Where("pending_verification_token = ?", tokenHash))
}

func (r *userRepository) Update(ctx context.Context, id uuid.UUID, update UserUpdate) (int64, error) {
	columns := update.columns()
	if len(columns) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&entity.User{}).
		Where("id = ?", id).
		Updates(columns)
	return result.RowsAffected, translateError(result.Error)
}

func (r *userRepository) ConsumeResetCode(
	ctx context.Context,
	email string,
	codeHash string,
	now time.Time,
	passwordHash string,
) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&entity.User{}).
		Where("email = ? AND reset_code_hash = ? AND reset_code_expires_at >= ?", email, codeHash, now).
		Updates(map[string]any{
			"password_hash":         passwordHash,
			"reset_code_hash":       nil,
			"reset_code_expires_at": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *userRepository) MarkEmailVerified(ctx context.Context, tokenHash string) (int64, error) {
	if tokenHash == "" {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&entity.User{}).
		Where("pending_verification_token = ?", tokenHash).
		Updates(map[string]any{
			"email_verified":             true,
			"pending_verification_token": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&entity.User{}, "id = ?", id)
	return result.RowsAffected, result.Error
}

func (r *userRepository) first(query *gorm.DB) (*entity.User, error) {
	var user entity.User
	err := query.First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func translateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}
