package negotiate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/pastelink/internal/config"
	"github.com/1ureka/pastelink/internal/signal"
	"github.com/1ureka/pastelink/internal/transport"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// ---------------------------------------------------------------------------
// Fake transport
// ---------------------------------------------------------------------------

type fakeChannel struct {
	label string

	mu        sync.Mutex
	onOpen    func()
	onMessage func([]byte)
	onClose   func()
	sent      []string
	sendErr   error
	closed    bool
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChannel) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

func (c *fakeChannel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

func (c *fakeChannel) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onOpen != nil && c.onMessage != nil && c.onClose != nil
}

func (c *fakeChannel) open() {
	c.mu.Lock()
	fn := c.onOpen
	c.mu.Unlock()
	// Like pion, events with no handler registered are dropped.
	if fn != nil {
		fn()
	}
}

func (c *fakeChannel) receive(text string) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn([]byte(text))
	}
}

func (c *fakeChannel) close() {
	c.mu.Lock()
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *fakeChannel) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakePeer struct {
	offerErr error
	gate     chan struct{} // when set, SetLocalDescription blocks until closed

	mu        sync.Mutex
	onPath    func(*webrtc.ICECandidate)
	onState   func(webrtc.PeerConnectionState)
	onChannel func(transport.Channel)
	local     *webrtc.SessionDescription
	remote    *webrtc.SessionDescription
	channels  []*fakeChannel
	closed    bool
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	if p.offerErr != nil {
		return webrtc.SessionDescription{}, p.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\ns=fake-offer\r\n"}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\ns=fake-answer\r\n"}, nil
}

func (p *fakePeer) SetLocalDescription(sd webrtc.SessionDescription) error {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &sd
	return nil
}

func (p *fakePeer) SetRemoteDescription(sd webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &sd
	return nil
}

func (p *fakePeer) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePeer) CreateDataChannel(label string, ordered bool) (transport.Channel, error) {
	ch := &fakeChannel{label: label}
	p.mu.Lock()
	p.channels = append(p.channels, ch)
	p.mu.Unlock()
	return ch, nil
}

func (p *fakePeer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	p.onPath = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnDataChannel(fn func(transport.Channel)) {
	p.mu.Lock()
	p.onChannel = fn
	p.mu.Unlock()
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) emitPath(path *webrtc.ICECandidate) {
	p.mu.Lock()
	fn := p.onPath
	p.mu.Unlock()
	fn(path)
}

func (p *fakePeer) emitState(state webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	fn(state)
}

func (p *fakePeer) emitChannel(ch transport.Channel) {
	p.mu.Lock()
	fn := p.onChannel
	p.mu.Unlock()
	fn(ch)
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) hasRemote() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote != nil
}

func (p *fakePeer) channel(i int) *fakeChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[i]
}

// fakeFactory hands out fakePeers and remembers them.
type fakeFactory struct {
	configure func(*fakePeer)
	err       error

	mu    sync.Mutex
	peers []*fakePeer
}

func (f *fakeFactory) newPeer() (Peer, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{}
	if f.configure != nil {
		f.configure(p)
	}
	f.mu.Lock()
	f.peers = append(f.peers, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[len(f.peers)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

// ---------------------------------------------------------------------------
// Recorder (StatusReporter + MessageSink)
// ---------------------------------------------------------------------------

type recorder struct {
	// stall, when set, runs inside ConnectionStatus to hold up the loop.
	stall func(status string)

	mu       sync.Mutex
	statuses []string
	states   []State
	blobs    []string
	ready    []bool
	errs     []error
	messages []Message
}

func (r *recorder) ConnectionStatus(status string) {
	if r.stall != nil {
		r.stall(status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) StateChanged(_, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) LocalBlob(blob string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs = append(r.blobs, blob)
}

func (r *recorder) SendReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, ready)
}

func (r *recorder) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) Deliver(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) visited() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) localBlobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.blobs...)
}

func (r *recorder) readiness() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.ready...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) delivered() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

func (r *recorder) statusLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// startOrchestrator runs an orchestrator until the test ends.
func startOrchestrator(t *testing.T, f *fakeFactory) (*Orchestrator, *recorder) {
	t.Helper()
	return startWithRecorder(t, f, &recorder{})
}

func startWithRecorder(t *testing.T, f *fakeFactory, rec *recorder) (*Orchestrator, *recorder) {
	t.Helper()

	o := New(f.newPeer, rec, rec)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return o, rec
}

func waitState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return o.Snapshot().State == want },
		waitFor, tick, "state never reached %s (last %s)", want, o.Snapshot().State)
}

func descriptorBlob(t *testing.T, kind signal.Kind) string {
	t.Helper()
	blob, err := signal.EncodeDescriptor(signal.Descriptor{Kind: kind, Payload: "v=0\r\ns=remote-" + string(kind) + "\r\n"})
	require.NoError(t, err)
	return blob
}

// toAwaitingAnswer drives an Initiator until its offer blob is exported.
func toAwaitingAnswer(t *testing.T, o *Orchestrator, f *fakeFactory) *fakePeer {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, o.SelectRole(ctx, config.RoleInitiator))
	p := f.last()
	waitState(t, o, StateAwaitingPathGathering)
	p.emitPath(hostPath(5000))
	p.emitPath(nil)
	waitState(t, o, StateAwaitingRemoteAnswer)
	return p
}

var errBoom = errors.New("boom")
