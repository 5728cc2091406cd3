package negotiate

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pastelink/internal/config"
	"github.com/1ureka/pastelink/internal/transport"
)

// eventKind enumerates everything the event loop reacts to. Inputs come
// from callers; the rest are posted by async tasks and pion callbacks.
type eventKind int

const (
	// Inputs.
	evRoleSelected eventKind = iota
	evBlobPasted
	evSendRequested

	// Async task completions.
	evLocalDescriptionApplied
	evRemoteDescriptionApplied

	// Transport callbacks.
	evPathDiscovered
	evTransportStateChanged
	evChannelReceived
	evChannelOpened
	evChannelMessage
	evChannelClosed
)

var eventNames = [...]string{
	evRoleSelected:             "role-selected",
	evBlobPasted:               "blob-pasted",
	evSendRequested:            "send-requested",
	evLocalDescriptionApplied:  "local-description-applied",
	evRemoteDescriptionApplied: "remote-description-applied",
	evPathDiscovered:           "path-discovered",
	evTransportStateChanged:    "transport-state-changed",
	evChannelReceived:          "channel-received",
	evChannelOpened:            "channel-opened",
	evChannelMessage:           "channel-message",
	evChannelClosed:            "channel-closed",
}

func (k eventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// event is the single message type consumed by Orchestrator.transition.
// Only the fields relevant to kind are set.
type event struct {
	kind eventKind

	// conn is the id of the connection that produced the event. Empty for
	// inputs. Events whose conn no longer matches the live connection are
	// dropped.
	conn string

	role    config.Role
	blob    string
	text    string
	err     error
	path    *webrtc.ICECandidate // nil marks the end of path discovery
	pcState webrtc.PeerConnectionState
	channel transport.Channel
	data    []byte

	// reply receives the outcome of an input once the loop has processed it.
	reply chan error
}
