// Package cleanup provides background worker
package cleanup

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/manager"
	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
)

// ContextProvider resolves a tenant context for durable-tier sweeps. The
// tenant manager satisfies it.
type ContextProvider interface {
	ContextFromID(tenantID string) (*tenant.Context, error)
}

// Worker handles background sweep operations: cache purge, durable session
// retention expiry, and inactive group archival.
type Worker struct {
	cache    *manager.Manager
	registry *tenant.Registry
	contexts ContextProvider
	config   *Config
}

// NewWorker creates a new sweep worker with injected configuration. A nil
// context provider limits the sweep to the cache tier.
func NewWorker(cache *manager.Manager, registry *tenant.Registry, contexts ContextProvider, config *Config) *Worker {
	return &Worker{
		cache:    cache,
		registry: registry,
		contexts: contexts,
		config:   config,
	}
}

// Start begins the sweep worker routine, using the configured interval
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	log.Printf("Sweep worker started (interval: %v, verbose: %v)",
		w.config.SweepInterval, w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			log.Println("Sweep worker stopping...")
			return
		case <-ticker.C:
			w.performSweep(ctx)
		}
	}
}

// performSweep executes the sweep for all active tenants
func (w *Worker) performSweep(ctx context.Context) {
	start := time.Now()
	reporter := NewReporter(w.cache)

	tenants := w.registry.ActiveTenantIDs()

	if w.config.VerboseReporting {
		reporter.LogStage("PERIODIC SWEEP")
		for _, tenantID := range tenants {
			fmt.Print(reporter.GenerateTenantReport(tenantID))
		}
	}

	var totalSwept int
	for _, tenantID := range tenants {
		select {
		case <-ctx.Done():
			return
		default:
			totalSwept += w.sweepTenant(ctx, tenantID, reporter)
		}
	}

	duration := time.Since(start)
	if totalSwept > 0 {
		reporter.LogSuccess("Sweep finished: %d items swept across %d tenants in %v",
			totalSwept, len(tenants), duration)
	} else if w.config.VerboseReporting {
		reporter.LogInfo("Sweep completed - nothing to sweep (%v)", duration)
	}
}

// sweepTenant expires idle sessions and archives inactive groups for one
// tenant, cache tier first, then the durable rows.
func (w *Worker) sweepTenant(ctx context.Context, tenantID string, reporter *Reporter) int {
	swept := w.cache.PurgeExpiredSessions(tenantID)
	swept += w.cache.ArchiveInactiveGroups(tenantID, w.config.GroupInactivityWindow)

	if w.contexts == nil {
		return swept
	}
	tenantCtx, err := w.contexts.ContextFromID(tenantID)
	if err != nil {
		reporter.LogError("durable sweep skipped for tenant "+tenantID, err)
		return swept
	}

	now := time.Now().UTC()
	expired, err := tenantCtx.SessionRepo().ExpireBefore(ctx, tenantID, now.Add(-w.config.SessionRetention))
	if err != nil {
		reporter.LogError("session retention sweep failed for tenant "+tenantID, err)
	}
	archived, err := tenantCtx.GroupRepo().ArchiveInactive(ctx, tenantID, now.Add(-w.config.GroupInactivityWindow))
	if err != nil {
		reporter.LogError("group archival sweep failed for tenant "+tenantID, err)
	}
	return swept + int(expired) + int(archived)
}
