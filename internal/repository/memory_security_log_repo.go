package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"accounts/internal/entity"

	"github.com/google/uuid"
)

type MemorySecurityLogRepository struct {
	mutex sync.Mutex
	logs  []entity.SecurityLog
	now   func() time.Time
}

func NewMemorySecurityLogRepository() *MemorySecurityLogRepository {
	return &MemorySecurityLogRepository{now: time.Now}
}

func (r *MemorySecurityLogRepository) Log(_ context.Context, log *entity.SecurityLog) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.now()
	}
	r.logs = append(r.logs, *log)
	return nil
}

func (r *MemorySecurityLogRepository) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]entity.SecurityLog, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var logs []entity.SecurityLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].UserID != nil && *r.logs[i].UserID == userID {
			logs = append(logs, r.logs[i])
		}
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// Actions returns every recorded action in insertion order.
func (r *MemorySecurityLogRepository) Actions() []entity.SecurityAction {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	actions := make([]entity.SecurityAction, 0, len(r.logs))
	for _, log := range r.logs {
		actions = append(actions, log.Action)
	}
	return actions
}
