package negotiate

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/pastelink/internal/config"
	"github.com/1ureka/pastelink/internal/signal"
)

func TestInitiatorVisitsOnlyInitiatorStates(t *testing.T) {
	f := &fakeFactory{}
	o, rec := startOrchestrator(t, f)

	toAwaitingAnswer(t, o, f)

	assert.Equal(t, []State{
		StateCreatingOffer,
		StateAwaitingPathGathering,
		StateOfferReady,
		StateAwaitingRemoteAnswer,
	}, rec.visited())

	blobs := rec.localBlobs()
	require.Len(t, blobs, 1)
	d, err := signal.DecodeDescriptor(blobs[0])
	require.NoError(t, err)
	assert.Equal(t, signal.KindOffer, d.Kind)

	snap := o.Snapshot()
	assert.Equal(t, config.RoleInitiator, snap.Role)
	assert.Equal(t, blobs[0], snap.LocalBlob)
	assert.Equal(t, 1, snap.Paths)
	assert.True(t, snap.GatheringComplete)
	assert.Equal(t, ReadyStateConnecting, snap.Channel)
}

func TestLocalBlobExportedOnceDespiteRepeatedSentinel(t *testing.T) {
	f := &fakeFactory{}
	o, rec := startOrchestrator(t, f)
	p := toAwaitingAnswer(t, o, f)

	p.emitPath(nil)
	p.emitPath(nil)
	// Events are processed in order; once this status shows up the
	// sentinels before it have been handled.
	p.emitState(webrtc.PeerConnectionStateConnecting)
	require.Eventually(t, func() bool { return o.Snapshot().Status == "connecting" }, waitFor, tick)

	assert.Len(t, rec.localBlobs(), 1)
	assert.Equal(t, StateAwaitingRemoteAnswer, o.Snapshot().State)
}

func TestSentinelBeforeLocalDescriptionApplied(t *testing.T) {
	gate := make(chan struct{})
	defer func() {
		select {
		case <-gate:
		default:
			close(gate)
		}
	}()

	f := &fakeFactory{configure: func(p *fakePeer) { p.gate = gate }}
	o, rec := startOrchestrator(t, f)

	require.NoError(t, o.SelectRole(context.Background(), config.RoleInitiator))
	p := f.last()
	p.emitPath(hostPath(5000))
	p.emitPath(nil)

	require.Eventually(t, func() bool { return o.Snapshot().Paths == 1 }, waitFor, tick)
	assert.Equal(t, StateCreatingOffer, o.Snapshot().State)
	assert.Empty(t, rec.localBlobs())

	close(gate)
	waitState(t, o, StateAwaitingRemoteAnswer)
	assert.Len(t, rec.localBlobs(), 1)
}

func TestOfferWhileAwaitingRemoteAnswer(t *testing.T) {
	f := &fakeFactory{}
	o, rec := startOrchestrator(t, f)
	p := toAwaitingAnswer(t, o, f)

	err := o.Paste(context.Background(), descriptorBlob(t, signal.KindOffer))
	require.ErrorIs(t, err, ErrProtocol)

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StateAwaitingRemoteAnswer, pe.State)
	assert.Equal(t, "offer", pe.Input)

	snap := o.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Empty(t, snap.ConnectionID)
	require.Eventually(t, p.isClosed, waitFor, tick)
	assert.False(t, p.hasRemote())

	errs := rec.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrProtocol)
}

func TestMalformedPaste(t *testing.T) {
	f := &fakeFactory{}
	o, rec := startOrchestrator(t, f)

	for _, blob := range []string{"not a blob!", "AAAA", ""} {
		err := o.Paste(context.Background(), blob)
		require.ErrorIs(t, err, ErrDecode, "blob %q", blob)

		var de *DecodeError
		assert.True(t, errors.As(err, &de))
	}

	assert.Equal(t, StateFailed, o.Snapshot().State)
	assert.Zero(t, f.count())
	assert.Len(t, rec.errors(), 3)
}

func TestPastedBlobWhitespaceIgnored(t *testing.T) {
	f := &fakeFactory{}
	o, _ := startOrchestrator(t, f)

	blob := descriptorBlob(t, signal.KindOffer)
	wrapped := "  " + blob[:10] + "\n" + blob[10:] + "\r\n"

	require.NoError(t, o.Paste(context.Background(), wrapped))
	assert.Equal(t, config.RoleResponder, o.Snapshot().Role)
}

func TestResponderFlow(t *testing.T) {
	f := &fakeFactory{}
	o, rec := startOrchestrator(t, f)
	ctx := context.Background()

	// An offer pasted while Idle infers the Responder role.
	require.NoError(t, o.Paste(ctx, descriptorBlob(t, signal.KindOffer)))
	p := f.last()
	waitState(t, o, StateAwaitingPathGathering)
	require.True(t, p.hasRemote())

	p.emitPath(hostPath(6000))
	p.emitPath(nil)
	waitState(t, o, StateAnswerReady)

	assert.Equal(t, []State{
		StateAwaitingRemoteOffer,
		StateCreatingAnswer,
		StateAwaitingPathGathering,
		StateAnswerReady,
	}, rec.visited())

	blobs := rec.localBlobs()
	require.Len(t, blobs, 1)
	d, err := signal.DecodeDescriptor(blobs[0])
	require.NoError(t, err)
	assert.Equal(t, signal.KindAnswer, d.Kind)

	// The channel arrives from the transport.
	ch := &fakeChannel{label: "chat"}
	p.emitChannel(ch)
	require.Eventually(t, ch.attached, waitFor, tick)
	ch.open()
	require.Eventually(t, func() bool { return o.Snapshot().Channel == ReadyStateOpen }, waitFor, tick)
	assert.Equal(t, []bool{true}, rec.readiness())

	ch.receive("hello there")
	require.Eventually(t, func() bool { return len(rec.delivered()) == 1 }, waitFor, tick)
	assert.Equal(t, Message{Origin: OriginPeer, Text: "hello there"}, rec.delivered()[0])

	p.emitState(webrtc.PeerConnectionStateConnected)
	waitState(t, o, StateConnected)
}

// The transport starts delivering as soon as its channel callback returns,
// possibly while the loop is still busy with an earlier event.
func TestResponderChannelWiredWhileLoopBusy(t *testing.T) {
	release := make(chan struct{})
	rec := &recorder{stall: func(status string) {
		if status == "connected" {
			<-release
		}
	}}
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()
	f := &fakeFactory{}
	o, _ := startWithRecorder(t, f, rec)

	require.NoError(t, o.Paste(context.Background(), descriptorBlob(t, signal.KindOffer)))
	p := f.last()
	waitState(t, o, StateAwaitingPathGathering)

	// The loop blocks in ConnectionStatus until released.
	p.emitState(webrtc.PeerConnectionStateConnected)

	ch := &fakeChannel{label: "chat"}
	p.emitChannel(ch)
	require.True(t, ch.attached())
	ch.open()
	ch.receive("ping")
	close(release)

	require.Eventually(t, func() bool { return len(rec.delivered()) == 1 }, waitFor, tick)
	assert.Equal(t, Message{Origin: OriginPeer, Text: "ping"}, rec.delivered()[0])
	assert.Equal(t, ReadyStateOpen, o.Snapshot().Channel)
	assert.Equal(t, []bool{true}, rec.readiness())
}

func TestRoleSelectedStartsResponder(t *testing.T) {
	f := &fakeFactory{}
	o, _ := startOrchestrator(t, f)

	require.NoError(t, o.SelectRole(context.Background(), config.RoleResponder))
	snap := o.Snapshot()
	assert.Equal(t, StateAwaitingRemoteOffer, snap.State)
	assert.NotEmpty(t, snap.ConnectionID)
	assert.Equal(t, ReadyStateNone, snap.Channel)

	require.NoError(t, o.Paste(context.Background(), descriptorBlob(t, signal.KindOffer)))
	waitState(t, o, StateAwaitingPathGathering)
	assert.Equal(t, 1, f.count())
}

func TestRoleReselectionRejected(t *testing.T) {
	f := &fakeFactory{}
	o, _ := startOrchestrator(t, f)
	ctx := context.Background()

	require.NoError(t, o.SelectRole(ctx, config.RoleResponder))
	err := o.SelectRole(ctx, config.RoleInitiator)
	require.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, StateFailed, o.Snapshot().State)

	// A failed attempt can be restarted from scratch.
	require.NoError(t, o.SelectRole(ctx, config.RoleInitiator))
	assert.Equal(t, 2, f.count())
	assert.Equal(t, StateCreatingOffer, o.Snapshot().State)
}

func TestAnswerHandling(t *testing.T) {
	f := &fakeFactory{}
	o, _ := startOrchestrator(t, f)
	ctx := context.Background()

	// An answer with no pending offer is out of place.
	err := o.Paste(ctx, descriptorBlob(t, signal.KindAnswer))
	require.ErrorIs(t, err, ErrProtocol)

	p := toAwaitingAnswer(t, o, f)
	require.NoError(t, o.Paste(ctx, descriptorBlob(t, signal.KindAnswer)))
	require.Eventually(t, p.hasRemote, waitFor, tick)

	err = o.Paste(ctx, descriptorBlob(t, signal.KindAnswer))
	require.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, StateFailed, o.Snapshot().State)
}

func TestSend(t *testing.T) {
	t.Run("connecting", func(t *testing.T) {
		f := &fakeFactory{}
		o, rec := startOrchestrator(t, f)
		toAwaitingAnswer(t, o, f)

		err := o.Send(context.Background(), "too early")
		require.ErrorIs(t, err, ErrChannelNotOpen)

		var ce *ChannelNotOpenError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, ReadyStateConnecting, ce.State)
		assert.Empty(t, f.last().channel(0).sentTexts())
		assert.Empty(t, rec.delivered())
		assert.Equal(t, StateFailed, o.Snapshot().State)
	})

	t.Run("open", func(t *testing.T) {
		f := &fakeFactory{}
		o, rec := startOrchestrator(t, f)
		p := toAwaitingAnswer(t, o, f)
		ch := p.channel(0)

		ch.open()
		require.Eventually(t, func() bool { return o.Snapshot().Channel == ReadyStateOpen }, waitFor, tick)

		require.NoError(t, o.Send(context.Background(), "ping"))
		assert.Equal(t, []string{"ping"}, ch.sentTexts())
		assert.Equal(t, []Message{{Origin: OriginLocal, Text: "ping"}}, rec.delivered())
	})

	t.Run("closed", func(t *testing.T) {
		f := &fakeFactory{}
		o, rec := startOrchestrator(t, f)
		p := toAwaitingAnswer(t, o, f)
		ch := p.channel(0)

		ch.open()
		ch.close()
		require.Eventually(t, func() bool { return o.Snapshot().Channel == ReadyStateClosed }, waitFor, tick)
		assert.Equal(t, []bool{true, false}, rec.readiness())

		err := o.Send(context.Background(), "anyone?")
		var ce *ChannelNotOpenError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, ReadyStateClosed, ce.State)
		assert.Empty(t, ch.sentTexts())
	})

	t.Run("transport error", func(t *testing.T) {
		f := &fakeFactory{}
		o, _ := startOrchestrator(t, f)
		p := toAwaitingAnswer(t, o, f)
		ch := p.channel(0)
		ch.sendErr = errBoom

		ch.open()
		require.Eventually(t, func() bool { return o.Snapshot().Channel == ReadyStateOpen }, waitFor, tick)

		err := o.Send(context.Background(), "ping")
		require.ErrorIs(t, err, errBoom)
		require.ErrorIs(t, err, ErrNegotiation)

		var ne *NegotiationError
		require.True(t, errors.As(err, &ne))
		assert.Equal(t, "send", ne.Step)
		assert.Equal(t, StateFailed, o.Snapshot().State)
	})

	t.Run("idle", func(t *testing.T) {
		o, _ := startOrchestrator(t, &fakeFactory{})
		err := o.Send(context.Background(), "hi")
		require.ErrorIs(t, err, ErrChannelNotOpen)
	})
}

func TestTransportFailureDiscardsPair(t *testing.T) {
	f := &fakeFactory{}
	o, rec := startOrchestrator(t, f)
	ctx := context.Background()

	p := toAwaitingAnswer(t, o, f)
	oldID := o.Snapshot().ConnectionID
	ch := p.channel(0)
	ch.open()
	require.NoError(t, o.Paste(ctx, descriptorBlob(t, signal.KindAnswer)))

	p.emitState(webrtc.PeerConnectionStateConnected)
	waitState(t, o, StateConnected)

	p.emitState(webrtc.PeerConnectionStateDisconnected)
	require.Eventually(t, func() bool { return o.Snapshot().Status == "disconnected" }, waitFor, tick)
	assert.Equal(t, StateConnected, o.Snapshot().State)

	p.emitState(webrtc.PeerConnectionStateFailed)
	waitState(t, o, StateFailed)
	require.Eventually(t, p.isClosed, waitFor, tick)

	snap := o.Snapshot()
	assert.Empty(t, snap.ConnectionID)
	assert.Empty(t, snap.LocalBlob)
	assert.Equal(t, []string{"connected", "disconnected", "failed"}, rec.statusLog())
	assert.Equal(t, []bool{true, false}, rec.readiness())

	errs := rec.errors()
	require.Len(t, errs, 1)
	var ne *NegotiationError
	require.True(t, errors.As(errs[0], &ne))
	assert.Equal(t, "transport", ne.Step)

	// A new attempt gets a fresh connection; the old one is ignored.
	require.NoError(t, o.SelectRole(ctx, config.RoleInitiator))
	require.Equal(t, 2, f.count())
	next := f.last()
	assert.NotEqual(t, oldID, o.Snapshot().ConnectionID)

	p.emitPath(hostPath(7000))
	ch.receive("stale")
	next.emitState(webrtc.PeerConnectionStateConnecting)
	require.Eventually(t, func() bool { return o.Snapshot().Status == "connecting" }, waitFor, tick)
	assert.Zero(t, o.Snapshot().Paths)
	assert.Empty(t, rec.delivered())
}

func TestCreateOfferFailure(t *testing.T) {
	f := &fakeFactory{configure: func(p *fakePeer) { p.offerErr = errBoom }}
	o, rec := startOrchestrator(t, f)

	require.NoError(t, o.SelectRole(context.Background(), config.RoleInitiator))
	waitState(t, o, StateFailed)

	errs := rec.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNegotiation)
	assert.ErrorIs(t, errs[0], errBoom)

	var ne *NegotiationError
	require.True(t, errors.As(errs[0], &ne))
	assert.Equal(t, "create offer", ne.Step)
	assert.Empty(t, rec.localBlobs())
}

func TestPeerFactoryFailure(t *testing.T) {
	f := &fakeFactory{err: errBoom}
	o, _ := startOrchestrator(t, f)

	err := o.SelectRole(context.Background(), config.RoleInitiator)
	require.ErrorIs(t, err, ErrNegotiation)
	assert.Equal(t, StateFailed, o.Snapshot().State)
}

func TestNoPathsDiscovered(t *testing.T) {
	f := &fakeFactory{}
	o, rec := startOrchestrator(t, f)

	require.NoError(t, o.SelectRole(context.Background(), config.RoleInitiator))
	waitState(t, o, StateAwaitingPathGathering)
	f.last().emitPath(nil)
	waitState(t, o, StateFailed)

	errs := rec.errors()
	require.Len(t, errs, 1)
	var ne *NegotiationError
	require.True(t, errors.As(errs[0], &ne))
	assert.Equal(t, "path discovery", ne.Step)
	assert.Empty(t, rec.localBlobs())
}

func TestInputsAfterClose(t *testing.T) {
	rec := &recorder{}
	o := New((&fakeFactory{}).newPeer, rec, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- o.Run(ctx) }()

	o.Close()
	require.NoError(t, <-stopped)
	o.Close()

	err := o.SelectRole(context.Background(), config.RoleInitiator)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunShutdownClosesPeer(t *testing.T) {
	f := &fakeFactory{}
	rec := &recorder{}
	o := New(f.newPeer, rec, rec)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- o.Run(ctx) }()

	require.NoError(t, o.SelectRole(context.Background(), config.RoleResponder))
	cancel()
	require.ErrorIs(t, <-stopped, context.Canceled)

	assert.True(t, f.last().isClosed())
	assert.Empty(t, o.Snapshot().ConnectionID)
}
