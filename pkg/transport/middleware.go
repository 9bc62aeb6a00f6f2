package transport

import "context"

// Middleware wraps a ResponseCreator with cross-cutting behavior such as
// recovery, request IDs, logging, or turn metrics. The first middleware
// in a chain is the outermost wrapper.
type Middleware func(ResponseCreator) ResponseCreator

// Chain composes middleware into one: Chain(a, b, c) produces
// a(b(c(creator))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next ResponseCreator) ResponseCreator {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// RequestIDFromContext extracts the request ID from the context, or ""
// when none is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context with the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
