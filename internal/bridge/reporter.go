package bridge

import (
	"errors"

	"github.com/1ureka/pastelink/internal/negotiate"
)

// Compile-time interface checks.
var (
	_ negotiate.StatusReporter = (*Server)(nil)
	_ negotiate.MessageSink    = (*Server)(nil)
)

func (s *Server) ConnectionStatus(status string) {
	s.send(OutFrame{Type: FrameStatus, Status: status})
}

func (s *Server) StateChanged(from, to negotiate.State) {
	s.send(OutFrame{Type: FrameState, From: from.String(), To: to.String()})
}

func (s *Server) LocalBlob(blob string) {
	s.send(OutFrame{Type: FrameBlob, Blob: blob})
}

func (s *Server) SendReady(ready bool) {
	s.send(OutFrame{Type: FrameReady, Ready: &ready})
}

func (s *Server) Error(err error) {
	s.sendError(err)
}

func (s *Server) Deliver(msg negotiate.Message) {
	text := msg.Text
	s.send(OutFrame{Type: FrameMessage, Origin: msg.Origin.String(), Text: &text})
}

func (s *Server) sendError(err error) {
	s.send(OutFrame{Type: FrameError, Kind: errorKind(err), Error: err.Error()})
}

// sendSnapshot brings a newly connected page up to date.
func (s *Server) sendSnapshot(snap negotiate.Snapshot) {
	ready := snap.Channel == negotiate.ReadyStateOpen
	s.send(OutFrame{
		Type:   FrameSnapshot,
		Status: snap.Status,
		Role:   string(snap.Role),
		To:     snap.State.String(),
		Blob:   snap.LocalBlob,
		Ready:  &ready,
	})
}

// errorKind names the taxonomy bucket of err for the page.
func errorKind(err error) string {
	switch {
	case errors.Is(err, negotiate.ErrDecode):
		return "decode"
	case errors.Is(err, negotiate.ErrProtocol):
		return "protocol"
	case errors.Is(err, negotiate.ErrNegotiation):
		return "negotiation"
	case errors.Is(err, negotiate.ErrChannelNotOpen):
		return "channel"
	default:
		return "other"
	}
}
