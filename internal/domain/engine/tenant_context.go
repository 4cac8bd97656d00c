package engine

import "context"

type tenantIDKey struct{}

// WithTenantID stamps the tenant onto the context so engine collaborators
// (recipient resolution, webhook logging) can see which tenant is running.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey{}, tenantID)
}

// TenantIDFromContext returns the stamped tenant id, or "".
func TenantIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tenantIDKey{}).(string); ok {
		return v
	}
	return ""
}
