package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/qs3c/quota_relay/internal/pkg/metrics"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("admin only")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStorageFailure  = errors.New("storage unavailable, please try again later")
)

// storageError 存储层失败统一包装为 ErrStorageFailure，保留底层错误链
func storageError(op string, err error) error {
	metrics.StorageFailuresTotal.WithLabelValues(op).Inc()
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}

// lookupError 区分记录不存在与存储失败
func lookupError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return storageError(op, err)
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
