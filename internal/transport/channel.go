package transport

import (
	"github.com/pion/webrtc/v4"
)

// Channel is a message-oriented data channel.
type Channel interface {
	Label() string
	SendText(text string) error
	OnOpen(fn func())
	OnMessage(fn func(data []byte))
	OnClose(fn func())
	Close() error
}

// Compile-time interface check.
var _ Channel = (*DataChannel)(nil)

// DataChannel wraps a pion DataChannel.
type DataChannel struct {
	raw *webrtc.DataChannel
}

// NewDataChannel wraps raw.
func NewDataChannel(raw *webrtc.DataChannel) *DataChannel {
	return &DataChannel{raw: raw}
}

// SendText transmits text as a single string message.
func (c *DataChannel) SendText(text string) error {
	return c.raw.SendText(text)
}

// OnMessage delivers each inbound message's bytes unchanged.
func (c *DataChannel) OnMessage(fn func(data []byte)) {
	c.raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

// Label / OnOpen / OnClose / Close proxy the underlying methods.
func (c *DataChannel) Label() string     { return c.raw.Label() }
func (c *DataChannel) OnOpen(fn func())  { c.raw.OnOpen(fn) }
func (c *DataChannel) OnClose(fn func()) { c.raw.OnClose(fn) }
func (c *DataChannel) Close() error      { return c.raw.Close() }
