// Package negotiate drives one manual offer/answer exchange from role
// selection to an open data channel.
//
// All state lives in an Orchestrator and is mutated only by its event loop
// (Run). Inputs from the UI, completions of the slow descriptor tasks and
// pion callbacks are all funnelled through a single event channel and
// handled by one transition function, so no locking is needed and the
// order of path discovery relative to descriptor creation does not matter.
package negotiate

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pastelink/internal/config"
	"github.com/1ureka/pastelink/internal/signal"
	"github.com/1ureka/pastelink/internal/transport"
	"github.com/1ureka/pastelink/internal/util"
)

// eventBufferSize bounds the number of pending events.
const eventBufferSize = 64

// Peer is the transport connection the orchestrator negotiates.
// *transport.Peer is the production implementation.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(sd webrtc.SessionDescription) error
	SetRemoteDescription(sd webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	CreateDataChannel(label string, ordered bool) (transport.Channel, error)
	OnICECandidate(fn func(*webrtc.ICECandidate))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	OnDataChannel(fn func(transport.Channel))
	Close() error
}

// Compile-time interface check.
var _ Peer = (*transport.Peer)(nil)

// PeerFactory creates a fresh Peer for each negotiation attempt.
type PeerFactory func() (Peer, error)

// TransportFactory returns a PeerFactory backed by pion.
func TransportFactory(cfg config.Config) PeerFactory {
	return func() (Peer, error) {
		p, err := transport.NewPeer(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// connection is one negotiation attempt: the Peer, its channel and the
// descriptors exchanged so far. It is discarded as a whole on failure.
type connection struct {
	id       string
	role     config.Role
	peer     Peer
	gatherer *Gatherer
	channel  *channelManager

	local     *signal.Descriptor
	remote    *signal.Descriptor
	localBlob string
	status    string
}

// Snapshot is a read-only copy of the orchestrator's state.
type Snapshot struct {
	ConnectionID      string
	Role              config.Role
	State             State
	Status            string // last transport status; empty without a connection
	Channel           ReadyState
	LocalBlob         string
	Paths             int
	GatheringComplete bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithChannel sets the label and ordering of the channel the Initiator creates.
func WithChannel(label string, ordered bool) Option {
	return func(o *Orchestrator) {
		o.channelLabel = label
		o.ordered = ordered
	}
}

// Orchestrator is the negotiation state machine.
type Orchestrator struct {
	newPeer      PeerFactory
	reporter     StatusReporter
	sink         MessageSink
	channelLabel string
	ordered      bool

	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the event loop.
	state State
	role  config.Role
	conn  *connection

	snapshot atomic.Pointer[Snapshot]
}

// New creates an orchestrator in the Idle state. Call Run to start it.
func New(newPeer PeerFactory, reporter StatusReporter, sink MessageSink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		newPeer:      newPeer,
		reporter:     reporter,
		sink:         sink,
		channelLabel: "chat",
		ordered:      true,
		events:       make(chan event, eventBufferSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.publish()
	return o
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Run processes events until ctx is cancelled or Close is called, then
// discards any live connection.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.shutdown()

	for {
		select {
		case ev := <-o.events:
			o.transition(ev)
			o.publish()
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return nil
		}
	}
}

// Close stops the event loop. Safe to call multiple times.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// Done is closed once the event loop has stopped accepting events.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) shutdown() {
	o.Close()
	if c := o.conn; c != nil {
		o.conn = nil
		c.channel.teardown()
		// Callbacks fired by Close see o.done closed and return, so closing
		// synchronously cannot deadlock here.
		c.peer.Close()
	}
	o.publish()
}

// Snapshot returns the state as of the last processed event.
func (o *Orchestrator) Snapshot() Snapshot {
	return *o.snapshot.Load()
}

func (o *Orchestrator) publish() {
	s := &Snapshot{Role: o.role, State: o.state}
	if c := o.conn; c != nil {
		s.ConnectionID = c.id
		s.Status = c.status
		s.Channel = c.channel.state
		s.LocalBlob = c.localBlob
		s.Paths = c.gatherer.Paths()
		s.GatheringComplete = c.gatherer.Complete()
	}
	o.snapshot.Store(s)
}

// ---------------------------------------------------------------------------
// Inputs
// ---------------------------------------------------------------------------

// SelectRole starts a new attempt in the given role. Accepted only while
// Idle or Failed.
func (o *Orchestrator) SelectRole(ctx context.Context, role config.Role) error {
	return o.submit(ctx, event{kind: evRoleSelected, role: role})
}

// Paste hands a remote blob to the orchestrator. An offer pasted while Idle
// or Failed starts a Responder attempt.
func (o *Orchestrator) Paste(ctx context.Context, blob string) error {
	return o.submit(ctx, event{kind: evBlobPasted, blob: blob})
}

// Send transmits text on the open channel.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	return o.submit(ctx, event{kind: evSendRequested, text: text})
}

// submit posts an input and waits until the loop has processed it. It does
// not wait for any async task the input starts.
func (o *Orchestrator) submit(ctx context.Context, ev event) error {
	ev.reply = make(chan error, 1)

	select {
	case o.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrClosed
	}

	select {
	case err := <-ev.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrClosed
	}
}

// post delivers an event from a task or callback. It gives up once the loop
// has stopped.
func (o *Orchestrator) post(ev event) bool {
	select {
	case o.events <- ev:
		return true
	case <-o.done:
		return false
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newConnectionID() string {
	return uuid.NewString()
}

// logState is used by the transition code for one-line state traces.
func (o *Orchestrator) logState(format string, args ...interface{}) {
	id := ""
	if o.conn != nil {
		id = shortID(o.conn.id)
	}
	util.LogDebug("["+id+"] "+format, args...)
}
