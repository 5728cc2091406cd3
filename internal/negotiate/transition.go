package negotiate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pastelink/internal/config"
	"github.com/1ureka/pastelink/internal/signal"
	"github.com/1ureka/pastelink/internal/transport"
	"github.com/1ureka/pastelink/internal/util"
)

// transition is the single entry point for every event. Any error it
// produces ends the current attempt. Inputs get their outcome on ev.reply
// after the failure has been applied, so a caller that sees an error also
// sees the Failed state in Snapshot.
func (o *Orchestrator) transition(ev event) {
	if ev.conn != "" && (o.conn == nil || ev.conn != o.conn.id) {
		util.LogDebug("[%s] dropping stale %s event", shortID(ev.conn), ev.kind)
		return
	}

	var err error
	switch ev.kind {
	case evRoleSelected:
		err = o.onRoleSelected(ev.role)
	case evBlobPasted:
		err = o.onBlobPasted(ev.blob)
	case evSendRequested:
		err = o.onSendRequested(ev.text)

	case evLocalDescriptionApplied:
		err = o.onLocalDescriptionApplied(ev.err)
	case evRemoteDescriptionApplied:
		err = o.onRemoteDescriptionApplied(ev.err)

	case evPathDiscovered:
		err = o.onPathDiscovered(ev.path)
	case evTransportStateChanged:
		err = o.onTransportStateChanged(ev.pcState)
	case evChannelReceived:
		o.conn.channel.attach(ev.channel)
	case evChannelOpened:
		o.conn.channel.opened(ev.channel)
	case evChannelMessage:
		o.conn.channel.message(ev.channel, ev.data)
	case evChannelClosed:
		o.conn.channel.closed(ev.channel)
	}

	if err != nil {
		o.fail(err)
	}
	if ev.reply != nil {
		ev.reply <- err
	}
}

// setState moves to a new logical state if the role's path allows it.
func (o *Orchestrator) setState(to State) {
	from := o.state
	if from == to {
		return
	}
	if !canTransition(o.role, from, to) {
		util.LogError("ignoring illegal transition %s -> %s (role %q)", from, to, o.role)
		return
	}
	o.state = to
	o.logState("%s -> %s", from, to)
	o.reporter.StateChanged(from, to)
}

// fail surfaces err, discards the connection and enters Failed. A new
// attempt must start from role selection (or an offer paste).
func (o *Orchestrator) fail(err error) {
	util.LogError("%v", err)
	o.reporter.Error(err)
	o.discard()
	o.setState(StateFailed)
}

// discard drops the live connection. The Peer is closed off the loop so
// that pion callbacks fired during Close cannot block on a full event queue.
func (o *Orchestrator) discard() {
	c := o.conn
	if c == nil {
		return
	}
	o.conn = nil
	c.channel.teardown()

	go func() {
		if err := c.peer.Close(); err != nil {
			util.LogDebug("[%s] close: %v", shortID(c.id), err)
		}
	}()
}

// ---------------------------------------------------------------------------
// Connection setup
// ---------------------------------------------------------------------------

// newConnection creates a fresh Peer and wires its callbacks to the loop.
func (o *Orchestrator) newConnection(role config.Role) error {
	peer, err := o.newPeer()
	if err != nil {
		return &NegotiationError{Step: "create connection", Err: err}
	}

	id := newConnectionID()
	c := &connection{
		id:       id,
		role:     role,
		peer:     peer,
		gatherer: NewGatherer(),
		status:   transport.StatusString(webrtc.PeerConnectionStateNew),
	}
	c.channel = newChannelManager(id, o.sink, o.reporter)

	peer.OnICECandidate(func(path *webrtc.ICECandidate) {
		o.post(event{kind: evPathDiscovered, conn: id, path: path})
	})
	peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		o.post(event{kind: evTransportStateChanged, conn: id, pcState: state})
	})
	peer.OnDataChannel(func(ch transport.Channel) {
		// pion opens the channel and starts delivering messages as soon as
		// this callback returns, so the handlers must be in place first.
		wireChannel(id, ch, o.post)
		o.post(event{kind: evChannelReceived, conn: id, channel: ch})
	})

	o.conn = c
	o.role = role
	util.LogInfo("[%s] new connection as %s", shortID(id), role)
	return nil
}

func (o *Orchestrator) onRoleSelected(role config.Role) error {
	if o.state != StateIdle && o.state != StateFailed {
		return &ProtocolError{State: o.state, Input: "role selection", Reason: "a negotiation attempt is already in progress"}
	}

	switch role {
	case config.RoleInitiator:
		return o.startInitiator()
	case config.RoleResponder:
		return o.startResponder()
	default:
		return &ProtocolError{State: o.state, Input: "role selection", Reason: fmt.Sprintf("unknown role %q", role)}
	}
}

// startInitiator creates the connection and its channel, then starts the
// offer task. The channel must exist before the offer so that the offer
// carries a data section.
func (o *Orchestrator) startInitiator() error {
	if err := o.newConnection(config.RoleInitiator); err != nil {
		return err
	}
	o.setState(StateCreatingOffer)

	c := o.conn
	ch, err := c.peer.CreateDataChannel(o.channelLabel, o.ordered)
	if err != nil {
		return &NegotiationError{Step: "create data channel", Err: err}
	}
	wireChannel(c.id, ch, o.post)
	c.channel.attach(ch)

	go func(id string, peer Peer) {
		o.post(event{kind: evLocalDescriptionApplied, conn: id, err: createOffer(peer)})
	}(c.id, c.peer)
	return nil
}

func (o *Orchestrator) startResponder() error {
	if err := o.newConnection(config.RoleResponder); err != nil {
		return err
	}
	o.setState(StateAwaitingRemoteOffer)
	return nil
}

// ---------------------------------------------------------------------------
// Async tasks (run off the loop; report back via events)
// ---------------------------------------------------------------------------

func createOffer(peer Peer) error {
	offer, err := peer.CreateOffer()
	if err != nil {
		return &NegotiationError{Step: "create offer", Err: err}
	}
	if err := peer.SetLocalDescription(offer); err != nil {
		return &NegotiationError{Step: "apply local offer", Err: err}
	}
	return nil
}

func createAnswer(peer Peer, offer webrtc.SessionDescription) error {
	if err := peer.SetRemoteDescription(offer); err != nil {
		return &NegotiationError{Step: "apply remote offer", Err: err}
	}
	answer, err := peer.CreateAnswer()
	if err != nil {
		return &NegotiationError{Step: "create answer", Err: err}
	}
	if err := peer.SetLocalDescription(answer); err != nil {
		return &NegotiationError{Step: "apply local answer", Err: err}
	}
	return nil
}

func applyAnswer(peer Peer, answer webrtc.SessionDescription) error {
	if err := peer.SetRemoteDescription(answer); err != nil {
		return &NegotiationError{Step: "apply remote answer", Err: err}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Pasted descriptors
// ---------------------------------------------------------------------------

// normalizeBlob strips whitespace a terminal or chat client may have
// inserted; the blob alphabet contains none.
func normalizeBlob(blob string) string {
	return strings.Join(strings.Fields(blob), "")
}

func (o *Orchestrator) onBlobPasted(blob string) error {
	blob = normalizeBlob(blob)
	d, err := signal.DecodeDescriptor(blob)
	if err != nil {
		return err
	}
	util.LogInfo("received %s code (fingerprint %08x)", d.Kind, util.Fingerprint(blob))

	switch d.Kind {
	case signal.KindOffer:
		return o.acceptOffer(d)
	case signal.KindAnswer:
		return o.acceptAnswer(d)
	}
	return nil
}

func (o *Orchestrator) acceptOffer(d signal.Descriptor) error {
	switch o.state {
	case StateIdle, StateFailed:
		if err := o.startResponder(); err != nil {
			return err
		}
	case StateAwaitingRemoteOffer:
	default:
		reason := "this side is already negotiating"
		if o.role == config.RoleInitiator {
			reason = "both sides created an offer; one side must restart as responder"
		}
		return &ProtocolError{State: o.state, Input: "offer", Reason: reason}
	}

	c := o.conn
	c.remote = &d
	o.setState(StateCreatingAnswer)

	go func(id string, peer Peer, offer webrtc.SessionDescription) {
		o.post(event{kind: evLocalDescriptionApplied, conn: id, err: createAnswer(peer, offer)})
	}(c.id, c.peer, d.Session())
	return nil
}

func (o *Orchestrator) acceptAnswer(d signal.Descriptor) error {
	if o.state != StateAwaitingRemoteAnswer {
		return &ProtocolError{State: o.state, Input: "answer", Reason: "no local offer is waiting for an answer"}
	}
	c := o.conn
	if c.remote != nil {
		return &ProtocolError{State: o.state, Input: "answer", Reason: "an answer has already been applied"}
	}
	c.remote = &d

	go func(id string, peer Peer, answer webrtc.SessionDescription) {
		o.post(event{kind: evRemoteDescriptionApplied, conn: id, err: applyAnswer(peer, answer)})
	}(c.id, c.peer, d.Session())
	return nil
}

// ---------------------------------------------------------------------------
// Task completions & transport callbacks
// ---------------------------------------------------------------------------

func (o *Orchestrator) onLocalDescriptionApplied(taskErr error) error {
	if taskErr != nil {
		return taskErr
	}
	if o.state != StateCreatingOffer && o.state != StateCreatingAnswer {
		o.logState("local description applied in state %s, ignoring", o.state)
		return nil
	}

	o.setState(StateAwaitingPathGathering)
	if o.conn.gatherer.Arm() {
		return o.describeReady()
	}
	return nil
}

func (o *Orchestrator) onRemoteDescriptionApplied(taskErr error) error {
	if taskErr != nil {
		return taskErr
	}
	o.logState("remote answer applied, waiting for transport")
	return nil
}

func (o *Orchestrator) onPathDiscovered(path *webrtc.ICECandidate) error {
	g := o.conn.gatherer
	if path != nil {
		o.logState("path discovered: %s %s:%d", path.Typ, path.Address, path.Port)
	} else {
		o.logState("path discovery complete (%d paths)", g.Paths())
	}

	if g.Observe(path) {
		return o.describeReady()
	}
	return nil
}

// describeReady freezes the local descriptor and exports it. The gatherer
// guarantees it runs at most once per connection.
func (o *Orchestrator) describeReady() error {
	c := o.conn
	if c.gatherer.Paths() == 0 {
		return &NegotiationError{Step: "path discovery", Err: errors.New("no network paths discovered")}
	}

	sd := c.peer.LocalDescription()
	if sd == nil {
		return &NegotiationError{Step: "export local descriptor", Err: errors.New("no local description")}
	}
	d, err := signal.FromSession(*sd)
	if err != nil {
		return &NegotiationError{Step: "export local descriptor", Err: err}
	}
	blob, err := signal.EncodeDescriptor(d)
	if err != nil {
		return &NegotiationError{Step: "export local descriptor", Err: err}
	}

	c.local = &d
	c.localBlob = blob

	ready := StateOfferReady
	if c.role == config.RoleResponder {
		ready = StateAnswerReady
	}
	o.setState(ready)
	util.LogInfo("[%s] %s code ready (%d chars, fingerprint %08x)", shortID(c.id), d.Kind, len(blob), util.Fingerprint(blob))
	o.reporter.LocalBlob(blob)

	if c.role == config.RoleInitiator {
		o.setState(StateAwaitingRemoteAnswer)
	}
	return nil
}

func (o *Orchestrator) onTransportStateChanged(state webrtc.PeerConnectionState) error {
	status := transport.StatusString(state)
	o.conn.status = status
	o.logState("transport %s", status)
	o.reporter.ConnectionStatus(status)

	switch state {
	case webrtc.PeerConnectionStateConnected:
		o.setState(StateConnected)
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		return &NegotiationError{Step: "transport", Err: fmt.Errorf("connection %s", status)}
	}
	return nil
}

func (o *Orchestrator) onSendRequested(text string) error {
	if o.conn == nil {
		return &ChannelNotOpenError{State: ReadyStateNone}
	}
	return o.conn.channel.send(text)
}
