package domain

import (
	"strings"
	"time"
)

// SubscriberStatus is the global status of a subscriber. Only enabled
// subscribers are send-eligible, regardless of any per-list subscription.
type SubscriberStatus string

const (
	SubscriberEnabled     SubscriberStatus = "enabled"
	SubscriberDisabled    SubscriberStatus = "disabled"
	SubscriberBlocklisted SubscriberStatus = "blocklisted"
)

// Subscriber represents a single email recipient.
type Subscriber struct {
	ID        string           `json:"id" db:"id"`
	Email     string           `json:"email" db:"email"`
	Name      string           `json:"name" db:"name"`
	Attribs   map[string]any   `json:"attribs" db:"attribs"`
	Status    SubscriberStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// NormalizeEmail lower-cases and trims an address. Subscriber emails are
// unique under this normalization.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ListVisibility controls whether a mailing list is publicly joinable.
type ListVisibility string

const (
	ListPublic  ListVisibility = "public"
	ListPrivate ListVisibility = "private"
)

// ListOptIn is the confirmation mode for joining a list.
type ListOptIn string

const (
	OptInSingle ListOptIn = "single"
	OptInDouble ListOptIn = "double"
)

// MailingList represents a list that subscribers opt into.
type MailingList struct {
	ID         string         `json:"id" db:"id"`
	Name       string         `json:"name" db:"name"`
	Visibility ListVisibility `json:"visibility" db:"visibility"`
	OptIn      ListOptIn      `json:"opt_in" db:"opt_in"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// SubscriptionStatus is the per-list status of a subscriber. Only confirmed
// subscriptions make a subscriber eligible for that list.
type SubscriptionStatus string

const (
	SubscriptionUnconfirmed  SubscriptionStatus = "unconfirmed"
	SubscriptionConfirmed    SubscriptionStatus = "confirmed"
	SubscriptionUnsubscribed SubscriptionStatus = "unsubscribed"
)

// Subscription is the join of a subscriber and a mailing list. Unique per
// (subscriber, list) pair.
type Subscription struct {
	SubscriberID   string             `json:"subscriber_id" db:"subscriber_id"`
	ListID         string             `json:"list_id" db:"list_id"`
	Status         SubscriptionStatus `json:"status" db:"status"`
	SubscribedAt   time.Time          `json:"subscribed_at" db:"subscribed_at"`
	UnsubscribedAt *time.Time         `json:"unsubscribed_at" db:"unsubscribed_at"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" db:"updated_at"`
}
