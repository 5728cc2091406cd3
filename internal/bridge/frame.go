// Package bridge exposes the orchestrator to an external UI over a local,
// PIN-protected WebSocket. The page receives status, state, blob, readiness,
// error and chat frames, and drives the orchestrator with role, paste and
// send frames.
package bridge

// FrameType identifies the kind of bridge frame.
type FrameType string

const (
	// Outbound (server → page).
	FrameSnapshot FrameType = "snapshot"
	FrameStatus   FrameType = "status"
	FrameState    FrameType = "state"
	FrameBlob     FrameType = "blob"
	FrameReady    FrameType = "ready"
	FrameError    FrameType = "error"
	FrameMessage  FrameType = "message"

	// Inbound (page → server).
	FrameRole  FrameType = "role"
	FramePaste FrameType = "paste"
	FrameSend  FrameType = "send"
)

// OutFrame is the JSON structure written to the page. Only the fields
// relevant to Type are set.
type OutFrame struct {
	Type   FrameType `json:"type"`
	Status string    `json:"status,omitempty"`
	Role   string    `json:"role,omitempty"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to,omitempty"`
	Blob   string    `json:"blob,omitempty"`
	Ready  *bool     `json:"ready,omitempty"`
	Kind   string    `json:"kind,omitempty"` // error kind: decode, protocol, negotiation, channel, other
	Error  string    `json:"error,omitempty"`
	Origin string    `json:"origin,omitempty"`
	Text   *string   `json:"text,omitempty"` // pointer so an empty message is still sent
}

// InFrame is the JSON structure read from the page.
type InFrame struct {
	Type FrameType `json:"type"`
	Role string    `json:"role,omitempty"`
	Blob string    `json:"blob,omitempty"`
	Text string    `json:"text,omitempty"`
}
