package models

import "time"

// Channel identifies a push delivery mechanism.
type Channel string

const (
	// ChannelAPNs is mobile-platform-A (Apple Push Notification service).
	ChannelAPNs Channel = "apns"
	// ChannelFCM is mobile-platform-B (Firebase Cloud Messaging).
	ChannelFCM Channel = "fcm"
	// ChannelWebPush is browser push (RFC 8030 with VAPID).
	ChannelWebPush Channel = "webpush"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelAPNs, ChannelFCM, ChannelWebPush:
		return true
	}
	return false
}

// DeactivationReason is recorded for diagnosis only.
type DeactivationReason string

const (
	ReasonExpired          DeactivationReason = "expired"
	ReasonUnregistered     DeactivationReason = "unregistered"
	ReasonProviderRejected DeactivationReason = "provider-rejected"
)

type PushKeys struct {
	P256dh string `bson:"p256dh" json:"p256dh"`
	Auth   string `bson:"auth" json:"auth"`
}

// Credential is opaque to the core; only the provider adapters interpret it.
type Credential struct {
	Token    string   `bson:"token,omitempty" json:"token,omitempty"`
	Endpoint string   `bson:"endpoint,omitempty" json:"endpoint,omitempty"`
	Keys     PushKeys `bson:"keys,omitempty" json:"keys,omitempty"`
}

// Key returns the credential identity used for uniqueness: the device token
// or, for browser subscriptions, the push service URL.
func (c Credential) Key() string {
	if c.Token != "" {
		return c.Token
	}
	return c.Endpoint
}

// Endpoint is one registered delivery credential of a user.
type Endpoint struct {
	ID                string             `bson:"id" json:"id"`
	UserID            string             `bson:"userId" json:"userId"`
	Channel           Channel            `bson:"channel" json:"channel"`
	Credential        Credential         `bson:"credential" json:"-"`
	CredentialKey     string             `bson:"credentialKey" json:"-"`
	Metadata          map[string]string  `bson:"metadata,omitempty" json:"metadata,omitempty"`
	IsActive          bool               `bson:"isActive" json:"isActive"`
	DeactivatedReason DeactivationReason `bson:"deactivatedReason,omitempty" json:"deactivatedReason,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	LastSeenAt        time.Time          `bson:"lastSeenAt" json:"lastSeenAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// RegisterEndpointRequest is the body of POST /push-subscriptions.
type RegisterEndpointRequest struct {
	Channel    Channel           `json:"channel" binding:"required,channel"`
	Credential Credential        `json:"credential"`
	Metadata   map[string]string `json:"metadata"`
}

type UnregisterEndpointRequest struct {
	Credential Credential `json:"credential"`
}
