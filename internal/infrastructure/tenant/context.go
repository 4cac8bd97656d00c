// Package tenant provides tenant context management for multi-tenant support.
package tenant

import (
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/manager"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/persistence/endpoints"
	"github.com/botforgehq/botforge-go/internal/infrastructure/persistence/flows"
	"github.com/botforgehq/botforge-go/internal/infrastructure/persistence/groups"
	"github.com/botforgehq/botforge-go/internal/infrastructure/persistence/participants"
	"github.com/botforgehq/botforge-go/internal/infrastructure/persistence/sessions"
)

// Context holds tenant-specific request context
type Context struct {
	TenantID     string
	Config       *Config
	Database     *Database
	Status       string
	CacheManager *manager.Manager
	Logger       *logging.ChanneledLogger
}

// Close cleans up the tenant context
func (ctx *Context) Close() error {
	if ctx.Database != nil {
		return ctx.Database.Close()
	}
	return nil
}

// GetTenantID returns the tenant ID for this context
func (ctx *Context) GetTenantID() string {
	return ctx.TenantID
}

// GetConfig returns the tenant configuration
func (ctx *Context) GetConfig() *Config {
	return ctx.Config
}

// GetDatabase returns the tenant database connection
func (ctx *Context) GetDatabase() *Database {
	return ctx.Database
}

// GetStatus returns the tenant status
func (ctx *Context) GetStatus() string {
	return ctx.Status
}

// GetCacheManager returns the cache manager
func (ctx *Context) GetCacheManager() *manager.Manager {
	return ctx.CacheManager
}

// IsActive returns true if the tenant is active
func (ctx *Context) IsActive() bool {
	return ctx.Status == "active"
}

// GetDatabaseInfo returns database connection information for logging
func (ctx *Context) GetDatabaseInfo() string {
	if ctx.Database != nil {
		return ctx.Database.GetConnectionInfo()
	}
	return "no database connection"
}

// =============================================================================
// Repository Factory Methods
// =============================================================================

// SessionRepo returns a session repository instance
func (ctx *Context) SessionRepo() *sessions.Repository {
	return sessions.NewRepository(ctx.Database.Conn, ctx.Logger)
}

// GroupRepo returns a group repository instance
func (ctx *Context) GroupRepo() *groups.Repository {
	return groups.NewRepository(ctx.Database.Conn, ctx.Logger)
}

// ParticipantRepo returns a participant repository instance
func (ctx *Context) ParticipantRepo() *participants.Repository {
	return participants.NewRepository(ctx.Database.Conn, ctx.Logger)
}

// FlowRepo returns a flow repository instance
func (ctx *Context) FlowRepo() *flows.Repository {
	return flows.NewRepository(ctx.Database.Conn, ctx.CacheManager, ctx.Logger)
}

// EndpointPayloadRepo returns an endpoint payload repository instance
func (ctx *Context) EndpointPayloadRepo() *endpoints.Repository {
	return endpoints.NewRepository(ctx.Database.Conn, ctx.Logger)
}
