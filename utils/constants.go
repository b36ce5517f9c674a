// File: utils/constants.go
package utils

import "time"

// UnreadCachePrefix is the prefix used for Redis unread-count cache keys.
const UnreadCachePrefix = "unread:"

// UnreadCacheTTL bounds how stale a cached unread count can get if an
// invalidation is lost.
const UnreadCacheTTL = 30 * time.Second

// InternalKeyHeader carries the shared secret for service-to-service routes.
const InternalKeyHeader = "X-Internal-Key"
