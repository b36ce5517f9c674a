package handlers

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	InternalAPIKey    string
	MaxRequestsPerMin int

	Notifications *NotificationHandler
	Subscriptions *SubscriptionHandler
	Realtime      *RealtimeHandler
	Internal      *InternalHandler
}
