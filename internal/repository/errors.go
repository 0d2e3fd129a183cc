package repository

import (
	"context"
	"errors"
	"proctor_backend/internal/util"
	"proctor_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// translate maps gorm failures onto the service error kinds. Duplicate keys
// stay unwrappable to gorm.ErrDuplicatedKey so callers can react to them.
func translate(err error, entity string, id interface{}) error {
	if err == nil {
		return nil
	}
	var appErr *util.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return util.NewNotFoundError(entity, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &util.AppError{Kind: util.KindConflict, Message: entity + " already exists", EntityID: id, Err: err}
	default:
		return util.NewStorageError(err)
	}
}

var errNothingDeleted = errors.New("nothing deleted")

const retryBackoff = 50 * time.Millisecond

// withRetry runs fn up to attempts times while it fails with a transient
// storage error. Deadlines and cancellations end the loop at once.
func withRetry(ctx context.Context, attempts int, op string, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn()
		if err == nil || !util.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		if i < attempts {
			logger.Log.Warn("Retrying storage operation", zap.String("op", op), zap.Int("attempt", i), zap.Error(err))
			select {
			case <-ctx.Done():
				return err
			case <-time.After(time.Duration(i) * retryBackoff):
			}
		}
	}
	return err
}
