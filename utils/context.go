package utils

import "context"

type contextKey string

func (c contextKey) String() string {
	return "authgate/" + string(c)
}

const ctxKeyClientIP = contextKey("clientIPKey")

// ClientIPToContext pushes the requesting client's address into the supplied
// context for easier propagation.
func ClientIPToContext(ctx context.Context, clientIP string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, clientIP)
}

// ClientIPFromContext obtains a client address being propagated through the context.
func ClientIPFromContext(ctx context.Context) string {
	clientIP, ok := ctx.Value(ctxKeyClientIP).(string)
	if !ok {
		return ""
	}

	return clientIP
}
