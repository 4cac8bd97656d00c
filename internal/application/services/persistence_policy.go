// Package services provides the application layer orchestrating flow
// execution, session storage, group sessions, and the endpoint bridge over
// the cache and durable tiers.
package services

import (
	"github.com/botforgehq/botforge-go/internal/domain/entities/flow"
	"github.com/botforgehq/botforge-go/internal/domain/entities/session"
	"github.com/botforgehq/botforge-go/internal/domain/variables"
)

// PersistencePolicy decides which sessions earn a durable write on save.
// Most chat traffic is throwaway; only sessions that would be expensive or
// unrecoverable to lose go to the database.
type PersistencePolicy struct {
	criticalStates []string
}

// NewPersistencePolicy creates a policy with the given critical-state
// variable names (typically config.SessionCriticalStates).
func NewPersistencePolicy(criticalStates []string) *PersistencePolicy {
	return &PersistencePolicy{criticalStates: criticalStates}
}

// ShouldPersist reports whether the session must survive a process restart:
// parked at an endpoint node, mid-payment, in a group, or holding a
// critical-state variable. def may be nil when the flow is unknown.
func (p *PersistencePolicy) ShouldPersist(def *flow.Definition, sess *session.Session) bool {
	if sess == nil {
		return false
	}
	if sess.InGroup() {
		return true
	}
	if def != nil && sess.CurrentNodeID != "" {
		if node, ok := def.Node(sess.CurrentNodeID); ok && node.Type == flow.NodeEndpoint {
			return true
		}
	}
	if v, ok := variables.Resolve(sess.Variables, "payment_status"); ok {
		if variables.Stringify(v) == "pending" {
			return true
		}
	}
	for _, name := range p.criticalStates {
		if _, ok := variables.Resolve(sess.Variables, name); ok {
			return true
		}
	}
	return false
}
