package filestore

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
)

// NotificationSink implements contract.NotificationSink as a simple
// batch-append to a single JSON array file; it never reads back previously
// inserted notifications.
type NotificationSink struct {
	path string
	mu   sync.Mutex
}

func NewNotificationSink(path string) *NotificationSink {
	return &NotificationSink{path: path}
}

func (n *NotificationSink) InsertNotifications(_ context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	existing, err := n.readAll()
	if err != nil {
		return err
	}

	existing = append(existing, notifications...)

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.Internal, "filestore: notification encode failed")
	}
	if err := os.WriteFile(n.path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.System, "filestore: notification write failed")
	}
	return nil
}

func (n *NotificationSink) readAll() ([]domain.Notification, error) {
	data, err := os.ReadFile(n.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "filestore: notification file unreadable")
	}
	if len(data) == 0 {
		return nil, nil
	}
	var notifications []domain.Notification
	if err := json.Unmarshal(data, &notifications); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "filestore: notification file malformed")
	}
	return notifications, nil
}
