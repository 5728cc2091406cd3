package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/1ureka/pastelink/internal/config"
	"github.com/1ureka/pastelink/internal/negotiate"
	"github.com/1ureka/pastelink/internal/util"
)

// watch reads frames from the page until it disconnects.
func (s *Server) watch(ctx context.Context, conn *websocket.Conn, ctrl Controller) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isClosed(err) || ctx.Err() != nil {
				util.LogInfo("bridge client disconnected")
				return nil
			}
			return fmt.Errorf("failed to read bridge frame: %w", err)
		}

		var in InFrame
		if err := json.Unmarshal(data, &in); err != nil {
			s.sendError(fmt.Errorf("malformed frame: %w", err))
			continue
		}

		if err := s.dispatch(ctx, ctrl, in); errors.Is(err, negotiate.ErrClosed) {
			return nil
		}
	}
}

// dispatch forwards one inbound frame. Errors returned by ctrl have already
// reached the page through the Error reporter method, so only frames the
// bridge itself rejects produce an error frame here.
func (s *Server) dispatch(ctx context.Context, ctrl Controller, in InFrame) error {
	var err error
	switch in.Type {
	case FrameRole:
		role, perr := config.ParseRole(in.Role)
		if perr != nil {
			s.sendError(perr)
			return nil
		}
		err = ctrl.SelectRole(ctx, role)

	case FramePaste:
		err = ctrl.Paste(ctx, in.Blob)

	case FrameSend:
		err = ctrl.Send(ctx, in.Text)

	default:
		s.sendError(fmt.Errorf("unknown frame type %q", in.Type))
		return nil
	}

	if err != nil {
		util.LogDebug("bridge %s rejected: %v", in.Type, err)
	}
	return err
}
