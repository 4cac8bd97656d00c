package messaging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/botforgehq/botforge-go/internal/domain/entities/group"
	"github.com/botforgehq/botforge-go/internal/infrastructure/caching/manager"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/pkg/config"
)

// OpsClient is a single connected operator dashboard client.
type OpsClient struct {
	Conn     *websocket.Conn
	TenantID string
	Send     chan []byte
}

// TenantStatsPayload is sent to each dashboard client on every tick.
type TenantStatsPayload struct {
	TenantID        string    `json:"tenantId"`
	ActiveSessions  int       `json:"activeSessions"`
	WaitingSessions int       `json:"waitingSessions"`
	ActiveGroups    int       `json:"activeGroups"`
	QueueDepth      int       `json:"queueDepth"`
	Delivered       int64     `json:"delivered"`
	Failed          int64     `json:"failed"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

// OpsBroadcaster pushes per-tenant engine stats to connected operator
// dashboards over WebSocket.
type OpsBroadcaster struct {
	tenantClients map[string]map[*OpsClient]bool
	register      chan *OpsClient
	unregister    chan *OpsClient
	cacheManager  *manager.Manager
	dispatcher    *Dispatcher
	logger        *logging.ChanneledLogger
	mu            sync.RWMutex
}

// NewOpsBroadcaster creates a broadcaster over the given cache manager and
// dispatcher.
func NewOpsBroadcaster(cm *manager.Manager, dispatcher *Dispatcher, logger *logging.ChanneledLogger) *OpsBroadcaster {
	return &OpsBroadcaster{
		tenantClients: make(map[string]map[*OpsClient]bool),
		register:      make(chan *OpsClient),
		unregister:    make(chan *OpsClient),
		cacheManager:  cm,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// Run starts the broadcaster's main loop. Run as a goroutine.
func (b *OpsBroadcaster) Run() {
	ticker := time.NewTicker(config.OpsTickInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			if _, ok := b.tenantClients[client.TenantID]; !ok {
				b.tenantClients[client.TenantID] = make(map[*OpsClient]bool)
			}
			b.tenantClients[client.TenantID][client] = true
			b.mu.Unlock()
			b.logger.SSE().Info("Ops client registered", "tenantId", client.TenantID)

		case client := <-b.unregister:
			b.mu.Lock()
			if clients, ok := b.tenantClients[client.TenantID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(b.tenantClients, client.TenantID)
					}
				}
			}
			b.mu.Unlock()
			b.logger.SSE().Info("Ops client unregistered", "tenantId", client.TenantID)

		case <-ticker.C:
			b.broadcastStats()
		}
	}
}

// Register queues a client for registration.
func (b *OpsBroadcaster) Register(client *OpsClient) {
	b.register <- client
}

// Unregister queues a client for unregistration.
func (b *OpsBroadcaster) Unregister(client *OpsClient) {
	b.unregister <- client
}

// broadcastStats computes and sends stats for every tenant with at least
// one connected client.
func (b *OpsBroadcaster) broadcastStats() {
	b.mu.RLock()
	tenantIDs := make([]string, 0, len(b.tenantClients))
	for tenantID := range b.tenantClients {
		tenantIDs = append(tenantIDs, tenantID)
	}
	b.mu.RUnlock()

	for _, tenantID := range tenantIDs {
		payload := b.StatsForTenant(tenantID)
		message, err := json.Marshal(payload)
		if err != nil {
			b.logger.LogError(logging.ChannelSSE, "ops_stats_marshal", err, tenantID)
			continue
		}

		b.mu.RLock()
		for client := range b.tenantClients[tenantID] {
			select {
			case client.Send <- message:
			default:
				// Slow client; this tick is skipped for it.
			}
		}
		b.mu.RUnlock()
	}
}

// StatsForTenant builds one tenant's stats snapshot from the cache tier.
func (b *OpsBroadcaster) StatsForTenant(tenantID string) TenantStatsPayload {
	payload := TenantStatsPayload{
		TenantID:    tenantID,
		GeneratedAt: time.Now().UTC(),
	}

	for _, key := range b.cacheManager.GetAllSessionKeys(tenantID) {
		sess, found := b.cacheManager.GetSession(tenantID, key)
		if !found {
			continue
		}
		payload.ActiveSessions++
		if sess.PendingWait != nil {
			payload.WaitingSessions++
		}
	}

	for _, groupID := range b.cacheManager.GetAllGroupIDs(tenantID) {
		if g, found := b.cacheManager.GetGroup(tenantID, groupID); found && g.Status == group.StatusActive {
			payload.ActiveGroups++
		}
	}

	if b.dispatcher != nil {
		payload.QueueDepth = b.dispatcher.QueueDepth()
		payload.Delivered = b.dispatcher.Delivered()
		payload.Failed = b.dispatcher.Failed()
	}
	return payload
}
