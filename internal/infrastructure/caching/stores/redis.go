package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/types"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

const redisOpTimeout = 2 * time.Second

// RedisSessionsStore is the session cache tier backed by Redis, for
// deployments where the process is horizontally scaled and an in-process
// map cannot be shared. Keys are namespaced per tenant; the participant
// index is kept in Redis sets.
type RedisSessionsStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.ChanneledLogger
}

// NewRedisSessionsStore creates a Redis-backed session store from a
// connection URL (redis://...).
func NewRedisSessionsStore(url string, config *types.CacheConfig, logger *logging.ChanneledLogger) (*RedisSessionsStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = types.DefaultCacheConfig()
	}
	if logger != nil {
		logger.Cache().Info("Initializing redis sessions cache store", "addr", opts.Addr, "sessionTTL", config.SessionTTL.String())
	}
	return &RedisSessionsStore{
		client: redis.NewClient(opts),
		ttl:    config.SessionTTL,
		logger: logger,
	}, nil
}

// Ping verifies connectivity at startup.
func (rs *RedisSessionsStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (rs *RedisSessionsStore) Close() error {
	return rs.client.Close()
}

func sessionRedisKey(tenantID, sessionKey string) string {
	return "bf:" + tenantID + ":session:" + sessionKey
}

func participantRedisKey(tenantID, participantID string) string {
	return "bf:" + tenantID + ":participant:" + participantID
}

func allSessionsRedisKey(tenantID string) string {
	return "bf:" + tenantID + ":sessions"
}

// GetSession retrieves a session by its key.
func (rs *RedisSessionsStore) GetSession(tenantID, sessionKey string) (*session.Session, bool) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := rs.client.Get(ctx, sessionRedisKey(tenantID, sessionKey)).Bytes()
	if err != nil {
		if err != redis.Nil && rs.logger != nil {
			rs.logger.Cache().Warn("Redis get failed", "tenantId", tenantID, "sessionKey", sessionKey, "error", err.Error())
		}
		return nil, false
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		if rs.logger != nil {
			rs.logger.Cache().Warn("Redis session unmarshal failed", "tenantId", tenantID, "sessionKey", sessionKey, "error", err.Error())
		}
		return nil, false
	}

	if rs.logger != nil {
		rs.logger.Cache().Debug("Cache operation", "operation", "get", "type", "session", "backend", "redis", "tenantId", tenantID, "sessionKey", sessionKey, "hit", true, "duration", time.Since(start))
	}
	return &sess, true
}

// SetSession stores a session with the configured TTL and maintains the
// participant index sets.
func (rs *RedisSessionsStore) SetSession(tenantID string, sess *session.Session) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := json.Marshal(sess)
	if err != nil {
		if rs.logger != nil {
			rs.logger.Cache().Warn("Redis session marshal failed", "tenantId", tenantID, "sessionKey", sess.SessionKey, "error", err.Error())
		}
		return
	}

	pipe := rs.client.Pipeline()
	pipe.Set(ctx, sessionRedisKey(tenantID, sess.SessionKey), data, rs.ttl)
	pipe.SAdd(ctx, participantRedisKey(tenantID, sess.ParticipantID), sess.SessionKey)
	pipe.SAdd(ctx, allSessionsRedisKey(tenantID), sess.SessionKey)
	if _, err := pipe.Exec(ctx); err != nil && rs.logger != nil {
		rs.logger.Cache().Warn("Redis set failed", "tenantId", tenantID, "sessionKey", sess.SessionKey, "error", err.Error())
	}

	if rs.logger != nil {
		rs.logger.Cache().Debug("Cache operation", "operation", "set", "type", "session", "backend", "redis", "tenantId", tenantID, "sessionKey", sess.SessionKey, "duration", time.Since(start))
	}
}

// RemoveSession removes a session and its index entries.
func (rs *RedisSessionsStore) RemoveSession(tenantID, sessionKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var participantID string
	if sess, found := rs.GetSession(tenantID, sessionKey); found {
		participantID = sess.ParticipantID
	}

	pipe := rs.client.Pipeline()
	pipe.Del(ctx, sessionRedisKey(tenantID, sessionKey))
	pipe.SRem(ctx, allSessionsRedisKey(tenantID), sessionKey)
	if participantID != "" {
		pipe.SRem(ctx, participantRedisKey(tenantID, participantID), sessionKey)
	}
	if _, err := pipe.Exec(ctx); err != nil && rs.logger != nil {
		rs.logger.Cache().Warn("Redis remove failed", "tenantId", tenantID, "sessionKey", sessionKey, "error", err.Error())
	}
}

// GetSessionsByParticipant returns all session keys for a participant.
func (rs *RedisSessionsStore) GetSessionsByParticipant(tenantID, participantID string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	keys, err := rs.client.SMembers(ctx, participantRedisKey(tenantID, participantID)).Result()
	if err != nil {
		return []string{}
	}
	return keys
}

// GetAllSessionKeys returns every session key recorded for a tenant.
func (rs *RedisSessionsStore) GetAllSessionKeys(tenantID string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	keys, err := rs.client.SMembers(ctx, allSessionsRedisKey(tenantID)).Result()
	if err != nil {
		return []string{}
	}
	return keys
}

// CountSessions returns the number of recorded sessions for a tenant.
func (rs *RedisSessionsStore) CountSessions(tenantID string) int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n, err := rs.client.SCard(ctx, allSessionsRedisKey(tenantID)).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// InitializeTenant is a no-op; Redis keys are created lazily.
func (rs *RedisSessionsStore) InitializeTenant(tenantID string) {}

// InvalidateTenant removes every recorded session for a tenant.
func (rs *RedisSessionsStore) InvalidateTenant(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	keys, err := rs.client.SMembers(ctx, allSessionsRedisKey(tenantID)).Result()
	if err != nil {
		return
	}
	pipe := rs.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, sessionRedisKey(tenantID, key))
	}
	pipe.Del(ctx, allSessionsRedisKey(tenantID))
	if _, err := pipe.Exec(ctx); err != nil && rs.logger != nil {
		rs.logger.Cache().Warn("Redis tenant invalidation failed", "tenantId", tenantID, "error", err.Error())
	}
}

// PurgeExpired is a no-op for Redis; key TTLs handle expiry. Stale index
// entries are pruned here instead.
func (rs *RedisSessionsStore) PurgeExpired(tenantID string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	keys, err := rs.client.SMembers(ctx, allSessionsRedisKey(tenantID)).Result()
	if err != nil {
		return 0
	}
	purged := 0
	for _, key := range keys {
		exists, err := rs.client.Exists(ctx, sessionRedisKey(tenantID, key)).Result()
		if err == nil && exists == 0 {
			rs.client.SRem(ctx, allSessionsRedisKey(tenantID), key)
			purged++
		}
	}
	return purged
}
