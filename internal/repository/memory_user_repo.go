package repository

import (
	"context"
	"sync"
	"time"

	"accounts/internal/entity"

	"github.com/google/uuid"
)

// MemoryUserRepository keeps users in process memory. It enforces the same
// uniqueness and conditional-update rules as the postgres repository and backs
// STORAGE_DRIVER=memory as well as the package tests.
type MemoryUserRepository struct {
	mutex sync.RWMutex
	users map[uuid.UUID]*entity.User
	now   func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[uuid.UUID]*entity.User),
		now:   time.Now,
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *entity.User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, exists := r.users[user.ID]; exists {
		return ErrDuplicate
	}
	if r.conflicts(user.ID, user.Email, user.Phone) {
		return ErrDuplicate
	}
	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return cloneUser(r.users[id]), nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return cloneUser(r.find(func(u *entity.User) bool { return u.Email == email })), nil
}

func (r *MemoryUserRepository) FindByEmailOrPhone(_ context.Context, email string, phone *string) (*entity.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if email == "" && phone == nil {
		return nil, nil
	}
	return cloneUser(r.find(func(u *entity.User) bool {
		if email != "" && u.Email == email {
			return true
		}
		return phone != nil && u.Phone != nil && *u.Phone == *phone
	})), nil
}

func (r *MemoryUserRepository) FindByPendingVerificationToken(_ context.Context, tokenHash string) (*entity.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if tokenHash == "" {
		return nil, nil
	}
	return cloneUser(r.find(func(u *entity.User) bool {
		return u.PendingVerificationToken != nil && *u.PendingVerificationToken == tokenHash
	})), nil
}

func (r *MemoryUserRepository) Update(_ context.Context, id uuid.UUID, update UserUpdate) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user, ok := r.users[id]
	if !ok || update.IsEmpty() {
		return 0, nil
	}
	email := user.Email
	if update.Email != nil {
		email = *update.Email
	}
	phone := user.Phone
	if update.Phone != nil {
		phone = update.Phone
	}
	if r.conflicts(id, email, phone) {
		return 0, ErrDuplicate
	}
	update.apply(user)
	user.UpdatedAt = r.now()
	return 1, nil
}

func (r *MemoryUserRepository) ConsumeResetCode(
	_ context.Context,
	email string,
	codeHash string,
	now time.Time,
	passwordHash string,
) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user := r.find(func(u *entity.User) bool { return u.Email == email })
	if user == nil || user.ResetCodeHash == nil || *user.ResetCodeHash != codeHash {
		return 0, nil
	}
	if user.ResetCodeExpiresAt == nil || user.ResetCodeExpiresAt.Before(now) {
		return 0, nil
	}
	user.PasswordHash = passwordHash
	user.ResetCodeHash = nil
	user.ResetCodeExpiresAt = nil
	user.UpdatedAt = r.now()
	return 1, nil
}

func (r *MemoryUserRepository) MarkEmailVerified(_ context.Context, tokenHash string) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if tokenHash == "" {
		return 0, nil
	}
	user := r.find(func(u *entity.User) bool {
		return u.PendingVerificationToken != nil && *u.PendingVerificationToken == tokenHash
	})
	if user == nil {
		return 0, nil
	}
	user.EmailVerified = true
	user.PendingVerificationToken = nil
	user.UpdatedAt = r.now()
	return 1, nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id uuid.UUID) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.users[id]; !ok {
		return 0, nil
	}
	delete(r.users, id)
	return 1, nil
}

func (r *MemoryUserRepository) find(match func(*entity.User) bool) *entity.User {
	for _, user := range r.users {
		if match(user) {
			return user
		}
	}
	return nil
}

func (r *MemoryUserRepository) conflicts(id uuid.UUID, email string, phone *string) bool {
	for otherID, other := range r.users {
		if otherID == id {
			continue
		}
		if other.Email == email {
			return true
		}
		if phone != nil && other.Phone != nil && *other.Phone == *phone {
			return true
		}
	}
	return false
}

func cloneUser(user *entity.User) *entity.User {
	if user == nil {
		return nil
	}
	clone := *user
	clone.Phone = copyString(user.Phone)
	clone.AvatarURL = copyString(user.AvatarURL)
	clone.AvatarObjectID = copyString(user.AvatarObjectID)
	clone.PendingVerificationToken = copyString(user.PendingVerificationToken)
	clone.ResetCodeHash = copyString(user.ResetCodeHash)
	if user.ResetCodeExpiresAt != nil {
		expiresAt := *user.ResetCodeExpiresAt
		clone.ResetCodeExpiresAt = &expiresAt
	}
	return &clone
}
