// Package app wires the orchestrator to a terminal session and, optionally,
// to the WebSocket bridge.
package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/pterm/pterm"

	"github.com/1ureka/pastelink/internal/negotiate"
	"github.com/1ureka/pastelink/internal/signal"
	"github.com/1ureka/pastelink/internal/util"
)

// notifyBuffer bounds each Console notification channel. Notifications that
// find a full channel are dropped; the session only needs the latest ones.
const notifyBuffer = 8

// Console renders orchestrator output in the terminal and relays the few
// events the interactive session waits on.
type Console struct {
	out       io.Writer
	clipboard bool

	mu sync.Mutex // serializes writes to out

	blobs    chan string
	ready    chan bool
	failures chan error
}

// Compile-time interface checks.
var (
	_ negotiate.StatusReporter = (*Console)(nil)
	_ negotiate.MessageSink    = (*Console)(nil)
)

// NewConsole creates a console writing to out. With copyBlob set, every
// local blob is also placed on the system clipboard.
func NewConsole(out io.Writer, copyBlob bool) *Console {
	return &Console{
		out:       out,
		clipboard: copyBlob,
		blobs:     make(chan string, notifyBuffer),
		ready:     make(chan bool, notifyBuffer),
		failures:  make(chan error, notifyBuffer),
	}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *Console) ConnectionStatus(status string) {
	c.println(pterm.Info.Sprintf("connection %s", status))
}

func (c *Console) StateChanged(from, to negotiate.State) {
	util.LogDebug("state %s -> %s", from, to)
}

func (c *Console) LocalBlob(blob string) {
	kind := "connection"
	if d, err := signal.DecodeDescriptor(blob); err == nil {
		kind = string(d.Kind)
	}

	note := "Copy the line below and send it to your peer."
	if c.clipboard {
		if err := clipboard.WriteAll(blob); err != nil {
			util.LogWarning("failed to copy to clipboard: %v", err)
		} else {
			note = "Copied to the clipboard. Send it to your peer."
		}
	}

	header := pterm.DefaultBox.
		WithTitle(blobTitle(kind, util.Fingerprint(blob))).
		Sprint(fmt.Sprintf("%d characters\n%s", len(blob), note))

	// The blob goes on its own line, outside the box, so that copying it
	// does not pick up border characters.
	c.println(header + "\n" + blob + "\n")
	notify(c.blobs, blob)
}

func (c *Console) SendReady(ready bool) {
	if ready {
		c.println(pterm.Success.Sprint("Channel open. Type a message and press Enter; /status shows the connection, /quit leaves."))
	} else {
		c.println(pterm.Warning.Sprint("Channel closed."))
	}
	notify(c.ready, ready)
}

func (c *Console) Error(err error) {
	c.println(pterm.Error.Sprint(err.Error()))
	notify(c.failures, err)
}

func (c *Console) Deliver(msg negotiate.Message) {
	c.println(formatMessage(msg))
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

func notify[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// formatMessage renders one chat line.
func formatMessage(msg negotiate.Message) string {
	if msg.Origin == negotiate.OriginLocal {
		return "You: " + msg.Text
	}
	return "Peer: " + msg.Text
}

func blobTitle(kind string, fp uint32) string {
	return fmt.Sprintf("Your %s code · %08x", kind, fp)
}
