package httpapi

import "context"

type contextKey string

const adminContextKey contextKey = "admin_caller"

func withAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminContextKey, true)
}

// isAdmin reports whether RequireAdminToken accepted the request.
func isAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(adminContextKey).(bool)
	return ok
}
