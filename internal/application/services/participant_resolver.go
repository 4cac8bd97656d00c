package services

import (
	"context"
	"fmt"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
	"github.com/botforgehq/botforge-go/pkg/config"
)

// ParticipantResolver backs the engine's broadcast audience resolution with
// the participant repository.
type ParticipantResolver struct {
	tenants *tenant.Manager
}

// NewParticipantResolver creates the resolver.
func NewParticipantResolver(tenants *tenant.Manager) *ParticipantResolver {
	return &ParticipantResolver{tenants: tenants}
}

// ResolveAudience expands a broadcast audience to participant ids. "all"
// returns every known participant, "active" only those seen within the
// configured activity window, and "list" intersects the configured ids with
// known participants.
func (r *ParticipantResolver) ResolveAudience(ctx context.Context, tenantID, botID string, cfg flow.BroadcastConfig) ([]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("broadcast resolution requires a tenant")
	}
	tenantCtx, err := r.tenants.ContextFromID(tenantID)
	if err != nil {
		return nil, err
	}
	repo := tenantCtx.ParticipantRepo()

	switch cfg.Audience {
	case flow.AudienceActive:
		cutoff := time.Now().UTC().AddDate(0, 0, -config.BroadcastActivityDays)
		return repo.ListActiveSince(ctx, tenantID, botID, cutoff)
	case flow.AudienceList:
		known, err := repo.ListByBot(ctx, tenantID, botID)
		if err != nil {
			return nil, err
		}
		keep := make(map[string]struct{}, len(known))
		for _, id := range known {
			keep[id] = struct{}{}
		}
		var out []string
		for _, id := range cfg.ParticipantIDs {
			if _, ok := keep[id]; ok {
				out = append(out, id)
			}
		}
		return out, nil
	default:
		return repo.ListByBot(ctx, tenantID, botID)
	}
}
