package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforgehq/botforge-go/internal/domain/variables"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "bot-1:p-1", Key("bot-1", "p-1"))
}

func TestNewSession(t *testing.T) {
	sess := New("bot-1", "p-1", "flow-1")
	assert.Equal(t, Key("bot-1", "p-1"), sess.SessionKey)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Empty(t, sess.CurrentNodeID)
	assert.False(t, sess.InGroup())
	require.NotNil(t, sess.Variables)
}

func TestCompleteClearsPendingWait(t *testing.T) {
	sess := New("bot-1", "p-1", "flow-1")
	sess.PendingWait = &PendingWait{NodeID: "ask", RequestedAt: time.Now().UTC()}

	sess.Complete()
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Nil(t, sess.PendingWait)
}

func TestPendingWaitExpired(t *testing.T) {
	now := time.Now().UTC()
	w := &PendingWait{NodeID: "form", RequestedAt: now.Add(-time.Minute), TimeoutMs: 30000}
	assert.True(t, w.Expired(now))

	w.TimeoutMs = 0
	assert.False(t, w.Expired(now), "zero timeout means wait forever")
}

func TestCloneIsDeep(t *testing.T) {
	sess := New("bot-1", "p-1", "flow-1")
	variables.Apply(sess.Variables, variables.Mutation{Key: "step", Op: variables.OpSet, Value: "one"})
	sess.PendingWait = &PendingWait{NodeID: "ask"}

	copied := sess.Clone()
	variables.Apply(copied.Variables, variables.Mutation{Key: "step", Op: variables.OpSet, Value: "two"})
	copied.PendingWait.NodeID = "other"

	v, _ := variables.Resolve(sess.Variables, "step")
	assert.Equal(t, "one", v)
	assert.Equal(t, "ask", sess.PendingWait.NodeID)
}
