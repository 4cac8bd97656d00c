package services

import (
	"context"
	"errors"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/performance"
	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
)

// ErrSessionNotFound is returned when neither tier has the session.
var ErrSessionNotFound = errors.New("session not found")

// SessionStorageService fronts the two-tier session store: cache first,
// durable tier behind it, with writes routed by the persistence policy.
type SessionStorageService struct {
	policy      *PersistencePolicy
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewSessionStorageService creates the storage service.
func NewSessionStorageService(policy *PersistencePolicy, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionStorageService {
	return &SessionStorageService{
		policy:      policy,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// GetSession reads cache first, then the durable tier. A durable hit
// repopulates the cache so the next read is warm.
func (s *SessionStorageService) GetSession(ctx context.Context, tenantCtx *tenant.Context, botID, participantID string) (*session.Session, error) {
	marker := s.perfTracker.StartMarker("session_storage_get", tenantCtx.TenantID)
	defer marker.Complete()

	key := session.Key(botID, participantID)
	if sess, found := tenantCtx.CacheManager.GetSession(tenantCtx.TenantID, key); found {
		if sess.Status == session.StatusActive {
			marker.SetSuccess(true)
			return sess, nil
		}
		// Terminal sessions are logical deletions on this tier too.
		tenantCtx.CacheManager.RemoveSession(tenantCtx.TenantID, key)
	}

	sess, err := tenantCtx.SessionRepo().FindByKey(ctx, tenantCtx.TenantID, key)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if sess == nil || sess.Status != session.StatusActive {
		// Completed and expired rows are logical deletions.
		return nil, ErrSessionNotFound
	}

	tenantCtx.CacheManager.SetSession(tenantCtx.TenantID, sess)
	s.logger.Cache().Debug("Session repopulated from durable tier",
		"tenantId", tenantCtx.TenantID, "sessionKey", key)
	marker.SetSuccess(true)
	return sess, nil
}

// SaveSession refreshes the cache for active sessions and evicts terminal
// ones; the durable tier is written only when forcePersist is set or the
// persistence policy demands it. A durable failure on a persistence-required
// path is returned to the caller with the cached copy intact.
func (s *SessionStorageService) SaveSession(ctx context.Context, tenantCtx *tenant.Context, def *flow.Definition, sess *session.Session, forcePersist bool) error {
	marker := s.perfTracker.StartMarker("session_storage_save", tenantCtx.TenantID)
	defer marker.Complete()

	if sess.Status == session.StatusActive {
		tenantCtx.CacheManager.SetSession(tenantCtx.TenantID, sess)
	} else {
		// Completed and expired sessions are logically deleted; the next
		// event for this participant starts a fresh session.
		tenantCtx.CacheManager.RemoveSession(tenantCtx.TenantID, sess.SessionKey)
	}

	if !forcePersist && !s.policy.ShouldPersist(def, sess) {
		marker.SetSuccess(true)
		return nil
	}

	if err := tenantCtx.SessionRepo().Upsert(ctx, tenantCtx.TenantID, sess); err != nil {
		s.logger.LogError(logging.ChannelDatabase, "session_upsert", err, tenantCtx.TenantID)
		marker.SetError(err)
		return err
	}
	marker.SetSuccess(true)
	return nil
}

// DeleteSession removes the cached copy and logically deletes the durable
// row (rows are kept for audit).
func (s *SessionStorageService) DeleteSession(ctx context.Context, tenantCtx *tenant.Context, botID, participantID string) error {
	key := session.Key(botID, participantID)
	tenantCtx.CacheManager.RemoveSession(tenantCtx.TenantID, key)
	return tenantCtx.SessionRepo().Delete(ctx, tenantCtx.TenantID, key)
}
