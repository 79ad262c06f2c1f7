package audit

import "context"

// Origin describes where an action came from.
type Origin struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
}

type originKey struct{}

// WithOrigin attaches origin metadata to ctx. Adapters set it once per
// inbound call; the trail reads it for every record written under ctx.
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin attached to ctx, if any.
func OriginFrom(ctx context.Context) Origin {
	if ctx == nil {
		return Origin{}
	}
	origin, _ := ctx.Value(originKey{}).(Origin)
	return origin
}
