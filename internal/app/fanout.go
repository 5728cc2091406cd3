package app

import (
	"github.com/1ureka/pastelink/internal/negotiate"
)

// fanout forwards every report and message to several front-ends, in order.
type fanout struct {
	reporters []negotiate.StatusReporter
	sinks     []negotiate.MessageSink
}

// add registers a front-end that is both a reporter and a sink.
func (f *fanout) add(r interface {
	negotiate.StatusReporter
	negotiate.MessageSink
}) {
	f.reporters = append(f.reporters, r)
	f.sinks = append(f.sinks, r)
}

func (f *fanout) ConnectionStatus(status string) {
	for _, r := range f.reporters {
		r.ConnectionStatus(status)
	}
}

func (f *fanout) StateChanged(from, to negotiate.State) {
	for _, r := range f.reporters {
		r.StateChanged(from, to)
	}
}

func (f *fanout) LocalBlob(blob string) {
	for _, r := range f.reporters {
		r.LocalBlob(blob)
	}
}

func (f *fanout) SendReady(ready bool) {
	for _, r := range f.reporters {
		r.SendReady(ready)
	}
}

func (f *fanout) Error(err error) {
	for _, r := range f.reporters {
		r.Error(err)
	}
}

func (f *fanout) Deliver(msg negotiate.Message) {
	for _, s := range f.sinks {
		s.Deliver(msg)
	}
}
