package middleware

// Context keys stored on the echo context.
const (
	ContextKeyRequestID = "request_id"
	ContextKeyAPIClient = "api_client"
)
