package audit

import "context"

type contextKey string

const requestMetaKey contextKey = "audit_request_meta"

// RequestMeta identifies the HTTP request an event originated from
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// WithRequestMeta returns a context carrying meta
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey, meta)
}

// RequestMetaFrom returns the request metadata stored in ctx
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey).(RequestMeta)
	return meta, ok
}
