package transport

import (
	"context"
	"fmt"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

// Recovery returns middleware that converts a panicking turn into a
// server error response instead of taking the whole process down.
func Recovery() Middleware {
	return func(next ResponseCreator) ResponseCreator {
		return ResponseCreatorFunc(func(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.CreateResponse(ctx, req, w)
		})
	}
}
