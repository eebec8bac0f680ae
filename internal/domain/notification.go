package domain

import (
	"time"

	"github.com/pricewatch/scan-core/internal/pkg/mark"
)

// WatchEntry is one user's subscription to one product: notify while the
// extracted price stays at or below MaxPrice and the item is available.
type WatchEntry struct {
	UserID    string
	ProductID string
	MaxPrice  float64
	IsActive  bool
}

// NotificationTarget is where a user's notifications are delivered. Users
// with no channel are excluded from preload entirely.
type NotificationTarget struct {
	UserID        string
	ChannelID     string // opaque; e.g. a chat id, interpreted by the delivery service
	DisplayName   string
	HasAnyChannel bool
}

// StateKey identifies one (user, product, shop) notification-state slot.
type StateKey struct {
	UserID    string
	ProductID string
	ShopID    string
}

// NotificationState is persisted across cycles; its absence for a StateKey
// means "not yet notified".
type NotificationState struct {
	LastNotifiedAt *time.Time
	LastPrice      *float64
	WasAvailable   bool
}

// NotificationStatus is the lifecycle stage of an emitted Notification. The
// core only ever creates Pending notifications; delivery is external.
type NotificationStatus string

const PendingStatus NotificationStatus = "pending"

// NotificationPayload is the channel-agnostic body handed to the delivery
// service. Mark carries the teacher's emoji-prefix convention for the
// message kind (new vs. renotified-after-reset) so a delivery service can
// prefix its rendered text the same way the teacher's notifier does,
// without the core deciding anything about message formatting itself.
type NotificationPayload struct {
	ProductName string
	ShopName    string
	ShopID      string
	ProductID   string
	Price       float64
	MaxPrice    float64
	ProductURL  string
	Mark        mark.Mark
}

// Notification is one emitted, not-yet-delivered alert.
type Notification struct {
	UserID     string
	Status     NotificationStatus
	Payload    NotificationPayload
	Deliveries []string
}
