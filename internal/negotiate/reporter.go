package negotiate

// StatusReporter receives human-readable progress from the orchestrator.
// Methods are called on the event loop goroutine, in order; they must not
// block and must not submit inputs back to the orchestrator synchronously.
type StatusReporter interface {
	// ConnectionStatus forwards each transport state change verbatim:
	// new, connecting, connected, disconnected, failed, closed or unknown.
	ConnectionStatus(status string)
	// StateChanged reports every logical state transition.
	StateChanged(from, to State)
	// LocalBlob delivers the local descriptor blob, once per Connection.
	LocalBlob(blob string)
	// SendReady reports whether Send is currently permitted.
	SendReady(ready bool)
	// Error reports every error surfaced by the orchestrator.
	Error(err error)
}

// Origin tells where a delivered message came from.
type Origin int

const (
	OriginPeer Origin = iota
	OriginLocal
)

func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "peer"
}

// Message is one application message seen on the channel.
type Message struct {
	Origin Origin
	Text   string
}

// MessageSink receives peer messages verbatim and a local echo of every
// message sent. Called on the event loop goroutine.
type MessageSink interface {
	Deliver(msg Message)
}

// NopReporter discards everything. Embed it to implement only the
// StatusReporter methods you care about.
type NopReporter struct{}

func (NopReporter) ConnectionStatus(string)   {}
func (NopReporter) StateChanged(State, State) {}
func (NopReporter) LocalBlob(string)          {}
func (NopReporter) SendReady(bool)            {}
func (NopReporter) Error(error)               {}

// MessageSinkFunc adapts a function to MessageSink.
type MessageSinkFunc func(Message)

func (f MessageSinkFunc) Deliver(msg Message) { f(msg) }
