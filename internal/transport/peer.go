// Package transport adapts pion PeerConnections and DataChannels to the
// small interfaces the negotiation core consumes.
package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pastelink/internal/config"
)

// newAPI builds a pion API. Loopback candidates are off by default in pion;
// they are needed when both peers run on one machine without a LAN address.
func newAPI(cfg config.Config) *webrtc.API {
	settingEngine := webrtc.SettingEngine{}
	if cfg.IncludeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
}

// iceServers converts the configured URLs. No TURN entries are ever
// produced: config.Validate rejects relay URLs.
func iceServers(cfg config.Config) []webrtc.ICEServer {
	if len(cfg.ICEServers) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: cfg.ICEServers}}
}

// StatusString maps a PeerConnection state onto the status vocabulary shown
// to users: new, connecting, connected, disconnected, failed, closed or unknown.
func StatusString(state webrtc.PeerConnectionState) string {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return "new"
	case webrtc.PeerConnectionStateConnecting:
		return "connecting"
	case webrtc.PeerConnectionStateConnected:
		return "connected"
	case webrtc.PeerConnectionStateDisconnected:
		return "disconnected"
	case webrtc.PeerConnectionStateFailed:
		return "failed"
	case webrtc.PeerConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
