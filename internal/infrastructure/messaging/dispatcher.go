package messaging

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/botforgehq/botforge-go/internal/domain/engine"
	"github.com/botforgehq/botforge-go/internal/infrastructure/observability/logging"
)

// queuedAction pairs an action with its tenant for delivery.
type queuedAction struct {
	tenantID string
	action   engine.Action
}

// Dispatcher fans engine actions out to the transport through a bounded
// queue. Enqueue never blocks: a full queue rejects the action and the
// caller decides what to do (the execution service logs and counts it).
type Dispatcher struct {
	queue     chan queuedAction
	transport Transport
	workers   int
	logger    *logging.ChanneledLogger

	delivered atomic.Int64
	failed    atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given queue capacity and
// worker count. A nil transport makes delivery a logged no-op, which keeps
// flow execution testable without a chat platform behind it.
func NewDispatcher(queueSize, workers int, transport Transport, logger *logging.ChanneledLogger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		queue:     make(chan queuedAction, queueSize),
		transport: transport,
		workers:   workers,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
		d.logger.Dispatch().Info("Dispatcher started",
			"workers", d.workers, "queueCapacity", cap(d.queue))
	})
}

// Stop drains in-flight deliveries and shuts the workers down.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
		d.logger.Dispatch().Info("Dispatcher stopped",
			"delivered", d.delivered.Load(), "failed", d.failed.Load())
	})
}

// Enqueue offers an action to the queue; false means the queue is full.
func (d *Dispatcher) Enqueue(tenantID string, action engine.Action) bool {
	select {
	case d.queue <- queuedAction{tenantID: tenantID, action: action}:
		return true
	default:
		return false
	}
}

// QueueDepth reports how many actions are waiting for delivery.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Delivered reports successfully delivered actions since start.
func (d *Dispatcher) Delivered() int64 {
	return d.delivered.Load()
}

// Failed reports delivery failures since start.
func (d *Dispatcher) Failed() int64 {
	return d.failed.Load()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		select {
		case item := <-d.queue:
			d.deliver(item)
		case <-d.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case item := <-d.queue:
					d.deliver(item)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(item queuedAction) {
	if d.transport == nil {
		d.logger.Dispatch().Debug("Action delivered to no-op transport",
			"tenantId", item.tenantID, "actionType", string(item.action.Type),
			"participantId", item.action.ParticipantID, "nodeId", item.action.NodeID)
		d.delivered.Add(1)
		return
	}

	if err := d.transport.Deliver(context.Background(), item.tenantID, item.action); err != nil {
		d.failed.Add(1)
		d.logger.Dispatch().Error("Action delivery failed",
			"tenantId", item.tenantID, "actionType", string(item.action.Type),
			"participantId", item.action.ParticipantID, "error", err.Error())
		return
	}
	d.delivered.Add(1)
}
