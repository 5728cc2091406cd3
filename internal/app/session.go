package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/pastelink/internal/bridge"
	"github.com/1ureka/pastelink/internal/config"
	"github.com/1ureka/pastelink/internal/negotiate"
	"github.com/1ureka/pastelink/internal/util"
)

// maxLineSize bounds one line of input; a pasted blob must fit in it.
const maxLineSize = 1 << 20

// errQuit ends the session at the user's request.
var errQuit = errors.New("quit")

// Options configures one interactive session.
type Options struct {
	Config    config.Config
	Role      config.Role
	Clipboard bool
	In        io.Reader
	Out       io.Writer

	// NewPeer overrides the pion transport. Used by tests.
	NewPeer negotiate.PeerFactory
}

// Run drives a complete session:
//  1. Start the orchestrator (and the bridge, if configured)
//  2. Exchange blobs with the peer through the terminal
//  3. Wait for the channel to open
//  4. Chat until /quit, end of input, or the channel closes
//
// Mistyped or out-of-place blobs restart the attempt in the same role;
// transport failures end the session with an error.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)

	console := NewConsole(opts.Out, opts.Clipboard)
	front := &fanout{}
	front.add(console)

	newPeer := opts.NewPeer
	if newPeer == nil {
		newPeer = negotiate.TransportFactory(opts.Config)
	}
	orch := negotiate.New(newPeer, front, front,
		negotiate.WithChannel(opts.Config.ChannelLabel, opts.Config.Ordered))

	// ── Optional bridge ────────────────────────────────────────────────
	if opts.Config.Bridge.Listen != "" {
		srv, err := startBridge(ctx, opts.Config.Bridge, orch, console)
		if err != nil {
			cancel()
			return err
		}
		defer srv.Close()
		front.add(srv)
	}

	// ── Event loop ─────────────────────────────────────────────────────
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		orch.Run(ctx)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	s := &session{
		orch:    orch,
		console: console,
		lines:   readLines(ctx, opts.In),
	}
	return s.run(ctx, opts.Role)
}

// startBridge starts the WebSocket bridge and prints where to reach it.
func startBridge(ctx context.Context, cfg config.BridgeConfig, orch *negotiate.Orchestrator, console *Console) (*bridge.Server, error) {
	srv := bridge.NewServer(cfg)
	addr, err := srv.Start(cfg.Listen)
	if err != nil {
		return nil, err
	}

	console.println(pterm.DefaultBox.WithTitle("WebSocket Bridge").Sprint(
		fmt.Sprintf("URL : ws://%s/ws?pin=%s\nPIN : %s", addr, srv.PIN(), srv.PIN())))

	go func() {
		if err := srv.Serve(ctx, orch); err != nil && ctx.Err() == nil {
			util.LogWarning("bridge stopped: %v", err)
		}
	}()
	return srv, nil
}

// session is the terminal side of one Run.
type session struct {
	orch    *negotiate.Orchestrator
	console *Console
	lines   <-chan string

	statsStarted bool
}

func (s *session) run(ctx context.Context, role config.Role) error {
	for {
		err := s.negotiate(ctx, role)
		switch {
		case err == nil:
			return s.chat(ctx)
		case errors.Is(err, errQuit), ctx.Err() != nil:
			return nil
		case errors.Is(err, negotiate.ErrDecode), errors.Is(err, negotiate.ErrProtocol):
			s.console.println(pterm.Warning.Sprintf("Starting over as %s.", role))
			s.drain()
		default:
			return err
		}
	}
}

// negotiate runs one attempt up to an open channel.
func (s *session) negotiate(ctx context.Context, role config.Role) error {
	if err := s.orch.SelectRole(ctx, role); err != nil {
		return err
	}

	switch role {
	case config.RoleInitiator:
		if err := s.waitBlob(ctx); err != nil {
			return err
		}
		if err := s.pasteFromPrompt(ctx, "Paste your peer's answer code and press Enter:"); err != nil {
			return err
		}
	default:
		if err := s.pasteFromPrompt(ctx, "Paste your peer's offer code and press Enter:"); err != nil {
			return err
		}
		if err := s.waitBlob(ctx); err != nil {
			return err
		}
	}

	s.console.println(pterm.Info.Sprint("Waiting for the connection..."))
	return s.waitReady(ctx)
}

// waitBlob blocks until the local blob has been shown.
func (s *session) waitBlob(ctx context.Context) error {
	for {
		select {
		case <-s.console.blobs:
			return nil
		case err := <-s.console.failures:
			return err
		case line, ok := <-s.lines:
			if err := s.idleInput(line, ok); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// waitReady blocks until the channel opens.
func (s *session) waitReady(ctx context.Context) error {
	for {
		select {
		case ready := <-s.console.ready:
			if ready {
				return nil
			}
		case err := <-s.console.failures:
			return err
		case line, ok := <-s.lines:
			if err := s.idleInput(line, ok); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// idleInput handles a line typed while nothing is being asked for.
func (s *session) idleInput(line string, ok bool) error {
	switch {
	case !ok || line == "/quit":
		return errQuit
	case line == "/status":
		s.printStatus()
	case line != "":
		s.console.println(pterm.Warning.Sprint("Not ready yet; /status shows progress, /quit leaves."))
	}
	return nil
}

// pasteFromPrompt reads lines until one is accepted as a blob.
func (s *session) pasteFromPrompt(ctx context.Context, prompt string) error {
	s.console.println(pterm.Info.Sprint(prompt))
	for {
		select {
		case line, ok := <-s.lines:
			switch {
			case !ok || line == "/quit":
				return errQuit
			case line == "/status":
				s.printStatus()
			case line == "":
			default:
				return s.orch.Paste(ctx, line)
			}
		case err := <-s.console.failures:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// chat relays typed lines until the session ends.
func (s *session) chat(ctx context.Context) error {
	if !s.statsStarted {
		s.statsStarted = true
		util.StartStatsReporter(ctx)
	}

	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return nil
			}
			switch line {
			case "/quit":
				return nil
			case "/status":
				s.printStatus()
			case "":
			default:
				if err := s.orch.Send(ctx, line); err != nil {
					return err
				}
			}
		case ready := <-s.console.ready:
			if !ready {
				s.console.println(pterm.Info.Sprint("Your peer has left."))
				return nil
			}
		case err := <-s.console.failures:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *session) printStatus() {
	snap := s.orch.Snapshot()
	table, err := pterm.DefaultTable.WithData(statusRows(snap)).Srender()
	if err != nil {
		util.LogWarning("failed to render status: %v", err)
		return
	}
	s.console.println(table)
}

// drain discards notifications left over from a failed attempt.
func (s *session) drain() {
	for {
		select {
		case <-s.console.blobs:
		case <-s.console.ready:
		case <-s.console.failures:
		default:
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// statusRows lays out a snapshot for /status.
func statusRows(snap negotiate.Snapshot) [][]string {
	orDash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	id := snap.ConnectionID
	if len(id) > 8 {
		id = id[:8]
	}
	return [][]string{
		{"Role", orDash(string(snap.Role))},
		{"State", snap.State.String()},
		{"Transport", orDash(snap.Status)},
		{"Channel", snap.Channel.String()},
		{"Paths", fmt.Sprintf("%d (complete: %t)", snap.Paths, snap.GatheringComplete)},
		{"Connection", orDash(id)},
		{"Traffic", util.Stats.Summary()},
	}
}

// readLines streams trimmed lines from r until EOF or ctx is cancelled.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			util.LogWarning("failed to read input: %v", err)
		}
	}()
	return lines
}
