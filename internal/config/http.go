package config

const (
	HCType        = "Content-Type"
	HETag         = "ETag"
	HCacheControl = "Cache-Control"

	CTypeJSON        = "application/json"
	CTypeEventStream = "text/event-stream"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)

const (
	CookieSessionID = "edit-session-id"

	// HRevalidateSecret carries the shared secret on revalidation webhooks.
	HRevalidateSecret = "X-Revalidate-Secret"
)
