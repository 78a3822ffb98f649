package shading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/blind"
)

// Event sources, recorded with every decision.
const (
	SourceMQTT   = "mqtt"
	SourceAPI    = "api"
	SourceButton = "button"
	SourceTimer  = "timer"
)

// Logger is the logging interface used by the shading package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DropCounter counts events lost to a full queue.
type DropCounter interface {
	Dropped(blind string)
}

// Snapshot is the last known state of one blind, safe to hand to API readers.
type Snapshot struct {
	Name      string           `json:"name"`
	Status    blind.Status     `json:"status"`
	Control   *blind.BlindCtrl `json:"control,omitempty"`
	Changed   bool             `json:"changed"`
	Error     string           `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type job struct {
	ev     blind.Event
	source string
	reply  chan outcome
}

type outcome struct {
	res blind.Result
	err error
}

// Node runs one blind controller on its own goroutine.
//
// Every event, whether from MQTT, the API, a wall button or the override
// expiry timer, goes through the node's queue and is processed one at a time.
// Results are handed to the sink on the same goroutine, so sinks observe
// decisions of one blind in order.
//
// Thread Safety:
//   - Enqueue, Submit and Snapshot are safe for concurrent use.
//   - The controller is only touched by the node goroutine.
type Node struct {
	ctrl  *blind.Controller
	queue chan job
	done  chan struct{}
	sink  Sink
	drops DropCounter
	log   Logger
	clock func() time.Time

	mu   sync.RWMutex
	last Snapshot

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewNode wraps a controller. The controller must be configured with
// Node.TimerEnqueue as its Deps.Enqueue before the node is started.
//
// Parameters:
//   - ctrl: The blind controller, owned by the node from now on
//   - queueSize: Capacity of the event queue (minimum 1)
//   - sink: Receives every non-stale result; nil discards
//   - drops: Counts dropped events; may be nil
//   - log: Logger; nil discards
func NewNode(ctrl *blind.Controller, queueSize int, sink Sink, drops DropCounter, log Logger) *Node {
	if queueSize < 1 {
		queueSize = 1
	}
	if sink == nil {
		sink = Sinks(nil)
	}
	if log == nil {
		log = noopLogger{}
	}
	return &Node{
		ctrl:  ctrl,
		queue: make(chan job, queueSize),
		done:  make(chan struct{}),
		sink:  sink,
		drops: drops,
		log:   log,
		clock: time.Now,
		last: Snapshot{
			Name:   ctrl.Name(),
			Status: blind.Status{Fill: blind.FillGrey, Shape: "ring", Text: "waiting"},
		},
	}
}

// Name returns the blind name.
func (n *Node) Name() string { return n.ctrl.Name() }

// Config returns the blind configuration.
func (n *Node) Config() blind.Config { return n.ctrl.Config() }

// Start launches the processing goroutine. Calling it twice is a no-op.
func (n *Node) Start() {
	n.startOnce.Do(func() {
		n.wg.Add(1)
		go n.run()
	})
}

// Stop ends the processing goroutine, waits for the event in flight and
// cancels the override timer. Queued events are discarded.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.done)
		n.wg.Wait()
		n.ctrl.Close()
	})
}

// Enqueue queues an event without blocking.
//
// Returns:
//   - error: ErrQueueFull when the queue has no room, ErrStopped after Stop
func (n *Node) Enqueue(ev blind.Event, source string) error {
	select {
	case <-n.done:
		return ErrStopped
	default:
	}

	select {
	case n.queue <- job{ev: ev, source: source}:
		return nil
	default:
		if n.drops != nil {
			n.drops.Dropped(n.Name())
		}
		n.log.Warn("blind event dropped, queue full", "source", source, "topic", ev.Topic())
		return ErrQueueFull
	}
}

// TimerEnqueue is the controller's Deps.Enqueue. It blocks until the event
// is queued or the node stops: an expiry must not be lost to a full queue.
func (n *Node) TimerEnqueue(ev blind.Event) {
	select {
	case n.queue <- job{ev: ev, source: SourceTimer}:
	case <-n.done:
	}
}

// Submit queues an event and waits for its result.
//
// Returns:
//   - blind.Result: The controller's result
//   - error: the controller error, ErrStopped, or the context error
func (n *Node) Submit(ctx context.Context, ev blind.Event, source string) (blind.Result, error) {
	reply := make(chan outcome, 1)

	select {
	case n.queue <- job{ev: ev, source: source, reply: reply}:
	case <-n.done:
		return blind.Result{}, ErrStopped
	case <-ctx.Done():
		return blind.Result{}, fmt.Errorf("queueing %s event: %w", n.Name(), ctx.Err())
	}

	select {
	case out := <-reply:
		return out.res, out.err
	case <-n.done:
		return blind.Result{}, ErrStopped
	case <-ctx.Done():
		return blind.Result{}, fmt.Errorf("waiting for %s result: %w", n.Name(), ctx.Err())
	}
}

// Snapshot returns the state after the last processed event.
func (n *Node) Snapshot() Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.last
}

func (n *Node) run() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return
		case j := <-n.queue:
			out := n.handle(j)
			if j.reply != nil {
				j.reply <- out
			}
		}
	}
}

// handle processes one event and fans the result out.
func (n *Node) handle(j job) outcome {
	topic := j.ev.Topic()
	if j.ev.Kind == blind.EventOverrideExpired {
		topic = blind.ExpiredTopic
	}

	start := n.clock()
	res, err := n.ctrl.Process(j.ev)
	took := n.clock().Sub(start)

	if err != nil {
		n.log.Error("blind event failed", "source", j.source, "topic", topic, "error", err)
		n.setSnapshot(Snapshot{Name: n.Name(), Status: res.Status, Error: err.Error(), UpdatedAt: start})
		return outcome{res: res, err: err}
	}
	if res.Stale {
		return outcome{res: res}
	}

	if res.Rejected != nil {
		n.log.Warn("override level rejected", "source", j.source, "topic", topic, "error", res.Rejected)
	}

	ctrl := res.Control
	n.setSnapshot(Snapshot{
		Name:      n.Name(),
		Status:    res.Status,
		Control:   &ctrl,
		Changed:   res.Changed,
		UpdatedAt: start,
	})

	n.sink.Deliver(Decision{
		Blind:  n.Name(),
		Source: j.source,
		Topic:  topic,
		Result: res,
		Took:   took,
	})

	return outcome{res: res}
}

func (n *Node) setSnapshot(s Snapshot) {
	n.mu.Lock()
	n.last = s
	n.mu.Unlock()
}
