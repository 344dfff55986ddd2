package contract

import "context"

// LocalSession is the session id used when a transport does not set one.
const LocalSession = "local"

type sessionKey struct{}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the session id stored on ctx, or LocalSession.
func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok && id != "" {
		return id
	}
	return LocalSession
}
