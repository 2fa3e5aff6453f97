package audit

import "context"

type ctxKey int

const (
	actorKey ctxKey = iota
	ipKey
)

type actor struct {
	userID string
	email  string
}

// WithActor attaches the authenticated caller to ctx.
func WithActor(ctx context.Context, userID, email string) context.Context {
	return context.WithValue(ctx, actorKey, actor{userID: userID, email: email})
}

// WithIP attaches the caller's source address to ctx.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey, ip)
}

func actorFrom(ctx context.Context) (actor, bool) {
	a, ok := ctx.Value(actorKey).(actor)
	return a, ok
}

// IPFrom returns the address attached by WithIP, or "".
func IPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey).(string)
	return ip
}
