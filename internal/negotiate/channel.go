package negotiate

import (
	"github.com/1ureka/pastelink/internal/transport"
	"github.com/1ureka/pastelink/internal/util"
)

// channelManager tracks the data channel of one Connection. It is owned by
// the event loop; pion callbacks only post events.
type channelManager struct {
	connID   string
	ch       transport.Channel
	state    ReadyState
	sink     MessageSink
	reporter StatusReporter
}

func newChannelManager(connID string, sink MessageSink, reporter StatusReporter) *channelManager {
	return &channelManager{
		connID:   connID,
		sink:     sink,
		reporter: reporter,
	}
}

// wireChannel registers handlers on ch that post its events to the loop,
// tagged with the owning connection. It must run before the transport can
// deliver anything on ch.
func wireChannel(connID string, ch transport.Channel, post func(event) bool) {
	ch.OnOpen(func() {
		post(event{kind: evChannelOpened, conn: connID, channel: ch})
	})
	ch.OnMessage(func(data []byte) {
		post(event{kind: evChannelMessage, conn: connID, channel: ch, data: data})
	})
	ch.OnClose(func() {
		post(event{kind: evChannelClosed, conn: connID, channel: ch})
	})
}

// attach makes ch the tracked channel. The Initiator calls it with the
// channel it created; the Responder with whatever instance the transport
// handed over. Handlers are already wired by then.
func (m *channelManager) attach(ch transport.Channel) {
	if m.ch != nil && m.ch != ch {
		util.LogWarning("[%s] replacing data channel %q with %q", shortID(m.connID), m.ch.Label(), ch.Label())
	}
	m.ch = ch
	m.state = ReadyStateConnecting
	util.LogDebug("[%s] data channel %q attached", shortID(m.connID), ch.Label())
}

func (m *channelManager) opened(ch transport.Channel) {
	if ch != m.ch || m.state != ReadyStateConnecting {
		return
	}
	m.state = ReadyStateOpen
	util.LogSuccess("[%s] data channel %q open", shortID(m.connID), ch.Label())
	m.reporter.SendReady(true)
}

func (m *channelManager) message(ch transport.Channel, data []byte) {
	if ch != m.ch {
		return
	}
	util.Stats.AddRecv(len(data))
	m.sink.Deliver(Message{Origin: OriginPeer, Text: string(data)})
}

func (m *channelManager) closed(ch transport.Channel) {
	if ch != m.ch || m.state == ReadyStateClosed {
		return
	}
	wasOpen := m.state == ReadyStateOpen
	m.state = ReadyStateClosed
	util.LogInfo("[%s] data channel %q closed", shortID(m.connID), ch.Label())
	if wasOpen {
		m.reporter.SendReady(false)
	}
}

// send transmits text and echoes it to the sink. Nothing is queued: a send
// on a channel that is not open fails immediately.
func (m *channelManager) send(text string) error {
	if m.ch == nil || m.state != ReadyStateOpen {
		return &ChannelNotOpenError{State: m.state}
	}
	if err := m.ch.SendText(text); err != nil {
		return &NegotiationError{Step: "send", Err: err}
	}
	util.Stats.AddSent(len(text))
	m.sink.Deliver(Message{Origin: OriginLocal, Text: text})
	return nil
}

// teardown marks the channel closed when its Connection is discarded. The
// transport closes the channel itself; later callbacks are stale and dropped.
func (m *channelManager) teardown() {
	if m.ch == nil || m.state == ReadyStateClosed {
		return
	}
	wasOpen := m.state == ReadyStateOpen
	m.state = ReadyStateClosed
	util.LogDebug("[%s] data channel %q discarded", shortID(m.connID), m.ch.Label())
	if wasOpen {
		m.reporter.SendReady(false)
	}
}
