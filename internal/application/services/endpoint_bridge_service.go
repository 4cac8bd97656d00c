package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/botforgehq/botforge-go/internal/domain/engine"
	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/performance"
	"github.com/botforgehq/botforge-go/internal/infrastructure/security"
	"github.com/botforgehq/botforge-go/internal/infrastructure/tenant"
)

// ErrInvalidAccessKey is returned when the presented key does not match the
// endpoint node's configured key. Nothing is merged or recorded.
var ErrInvalidAccessKey = errors.New("invalid access key")

// ErrUnknownEndpointNode is returned when the node id does not name an
// endpoint node in the bot's active flow.
var ErrUnknownEndpointNode = errors.New("unknown endpoint node")

// IngestResult is the bridge's response shape.
type IngestResult struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	DataKeys []string `json:"dataKeys,omitempty"`
}

// EndpointBridgeService accepts external HTTP payloads addressed to an
// endpoint node and resumes the waiting session (or stores bot-wide data
// when no participant is named).
type EndpointBridgeService struct {
	execution   *ExecutionService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewEndpointBridgeService creates the bridge.
func NewEndpointBridgeService(execution *ExecutionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *EndpointBridgeService {
	return &EndpointBridgeService{
		execution:   execution,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// Ingest validates the access key against the endpoint node's configuration
// and records the payload. Participant-identified payloads resume the
// waiting session fire-and-forget; anonymous payloads land in the bot-wide
// slot store only.
func (s *EndpointBridgeService) Ingest(ctx context.Context, tenantCtx *tenant.Context, botID, nodeID, participantID, accessKey string, payload map[string]any) (*IngestResult, error) {
	marker := s.perfTracker.StartMarker("endpoint_ingest", tenantCtx.TenantID)
	defer marker.Complete()

	def, err := tenantCtx.FlowRepo().FindActiveByBot(ctx, tenantCtx.TenantID, botID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("bot %s has no active flow", botID)
	}

	node, ok := def.Node(nodeID)
	if !ok {
		return nil, ErrUnknownEndpointNode
	}
	cfg, ok := node.Config.(flow.EndpointConfig)
	if !ok {
		return nil, ErrUnknownEndpointNode
	}

	if !security.VerifyAccessKey(cfg.AccessKey, accessKey) {
		s.logger.Auth().Warn("Endpoint ingest rejected: access key mismatch",
			"tenantId", tenantCtx.TenantID, "botId", botID, "nodeId", nodeID)
		return nil, ErrInvalidAccessKey
	}

	if _, err := tenantCtx.EndpointPayloadRepo().Insert(ctx, tenantCtx.TenantID, botID, participantID, nodeID, payload); err != nil {
		s.logger.LogError(logging.ChannelEndpoint, "endpoint_payload_insert", err, tenantCtx.TenantID)
		marker.SetError(err)
		return nil, err
	}

	if participantID != "" {
		s.resumeAsync(tenantCtx, botID, participantID, payload)
	}

	s.logger.Endpoint().Info("Endpoint payload accepted",
		"tenantId", tenantCtx.TenantID, "botId", botID, "nodeId", nodeID,
		"participantId", participantID, "fields", len(payload))
	marker.SetSuccess(true)
	return &IngestResult{
		Success:  true,
		Message:  "payload accepted",
		DataKeys: payloadKeys(payload),
	}, nil
}

// resumeAsync fires the synthetic endpoint event without holding the HTTP
// caller; the execution service serializes against other session events.
func (s *EndpointBridgeService) resumeAsync(tenantCtx *tenant.Context, botID, participantID string, payload map[string]any) {
	event := engine.Event{
		Type:          engine.EventEndpoint,
		BotID:         botID,
		ParticipantID: participantID,
		Payload:       payload,
		ReceivedAt:    time.Now().UTC(),
	}
	go func() {
		if _, err := s.execution.HandleEvent(context.Background(), tenantCtx, event); err != nil {
			s.logger.LogError(logging.ChannelEndpoint, "endpoint_resume", err, tenantCtx.TenantID)
		}
	}()
}

func payloadKeys(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
