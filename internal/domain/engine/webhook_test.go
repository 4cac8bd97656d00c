package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/domain/variables"
)

func webhookFlow(url string, cfg flow.WebhookConfig, withErrorEdge bool) *flow.Definition {
	cfg.URL = url
	nodes := []*flow.Node{
		node("start", flow.StartConfig{}),
		node("hook", cfg),
		node("ok", flow.MessageConfig{Text: "ok"}),
		node("fail", flow.MessageConfig{Text: "fail"}),
		node("end", flow.EndConfig{}),
	}
	edges := []*flow.Edge{
		edge("start", "hook", flow.EdgeDefault),
		edge("hook", "ok", flow.EdgeDefault),
		edge("ok", "end", flow.EdgeDefault),
		edge("fail", "end", flow.EdgeDefault),
	}
	if withErrorEdge {
		edges = append(edges, edge("hook", "fail", flow.EdgeError))
	}
	return flow.NewDefinition("flow1", "bot1", nodes, edges)
}

func fastRetryEngine() *Engine {
	return NewEngine(nil, Options{RandSeed: 1, RetryBackoff: time.Millisecond})
}

func TestWebhookSuccessStoresResponse(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"orderId": "o-77"})
	}))
	defer srv.Close()

	def := webhookFlow(srv.URL, flow.WebhookConfig{
		Method:           "POST",
		Body:             `{"user":"{{name}}"}`,
		ResponseVariable: "order",
		ResponseScope:    variables.ScopeUser,
	}, false)

	sess := session.New("bot1", "user1", "flow1")
	sess.Variables[variables.ScopeUser]["name"] = "Ada"

	res, err := fastRetryEngine().Execute(context.Background(), def, sess, messageEvent("go"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"user":"Ada"}`, string(gotBody))
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "ok", res.Actions[0].Text)

	stored, ok := sess.Variables[variables.ScopeUser]["order"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "o-77", stored["orderId"])
}

func TestWebhookRetriesThenErrorEdge(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	def := webhookFlow(srv.URL, flow.WebhookConfig{Method: "GET", RetryCount: 2}, true)

	sess := session.New("bot1", "user1", "flow1")
	res, err := fastRetryEngine().Execute(context.Background(), def, sess, messageEvent("go"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "fail", res.Actions[0].Text)
}

func TestWebhookFailureWithoutErrorEdgeHalts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	def := webhookFlow(srv.URL, flow.WebhookConfig{Method: "GET"}, false)

	sess := session.New("bot1", "user1", "flow1")
	res, err := fastRetryEngine().Execute(context.Background(), def, sess, messageEvent("go"))
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
	assert.Equal(t, "hook", sess.CurrentNodeID)
	assert.Equal(t, session.StatusActive, sess.Status)
}

func TestWebhookRetrySucceedsMidway(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	def := webhookFlow(srv.URL, flow.WebhookConfig{
		Method:           "GET",
		RetryCount:       5,
		ResponseVariable: "reply",
		ResponseScope:    variables.ScopeUser,
	}, false)

	sess := session.New("bot1", "user1", "flow1")
	res, err := fastRetryEngine().Execute(context.Background(), def, sess, messageEvent("go"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "plain text", sess.Variables[variables.ScopeUser]["reply"])
}
