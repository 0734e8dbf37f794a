package storesession

import "context"

type controllerContextKey struct{}

// WithController adds a Controller to the context.
func WithController(ctx context.Context, c *Controller) context.Context {
	return context.WithValue(ctx, controllerContextKey{}, c)
}

// FromContext retrieves the Controller stored by Middleware.
func FromContext(ctx context.Context) (*Controller, bool) {
	c, ok := ctx.Value(controllerContextKey{}).(*Controller)
	return c, ok
}
