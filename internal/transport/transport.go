package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pastelink/internal/config"
)

// Peer wraps a single pion PeerConnection. Callbacks registered through it
// run on pion's goroutines; callers are expected to hand the values off to
// their own event loop rather than act on them in place.
type Peer struct {
	pc *webrtc.PeerConnection
}

// NewPeer creates a PeerConnection configured from cfg. No network activity
// happens until a local description is applied.
func NewPeer(cfg config.Config) (*Peer, error) {
	pc, err := newAPI(cfg).NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers(cfg),
	})
	if err != nil {
		return nil, err
	}
	return &Peer{pc: pc}, nil
}

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP and starts path discovery.
func (p *Peer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (p *Peer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(sdp)
}

// LocalDescription returns the current local SDP including every candidate
// gathered so far, or nil before SetLocalDescription.
func (p *Peer) LocalDescription() *webrtc.SessionDescription {
	return p.pc.LocalDescription()
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

// OnConnectionStateChange registers a callback for PeerConnection state changes.
func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

// OnDataChannel registers a callback for channels opened by the remote side.
func (p *Peer) OnDataChannel(fn func(Channel)) {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		fn(NewDataChannel(dc))
	})
}

// ---------------------------------------------------------------------------
// Channels & lifecycle
// ---------------------------------------------------------------------------

// CreateDataChannel creates an in-band negotiated channel. The remote side
// receives it through OnDataChannel once the offer has been applied.
func (p *Peer) CreateDataChannel(label string, ordered bool) (Channel, error) {
	dc, err := p.pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return nil, err
	}
	return NewDataChannel(dc), nil
}

// Close shuts down the PeerConnection and every channel on it.
func (p *Peer) Close() error {
	return p.pc.Close()
}
