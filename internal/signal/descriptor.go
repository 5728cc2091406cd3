package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Kind identifies which half of the offer/answer exchange a descriptor is.
type Kind string

const (
	KindOffer  Kind = "offer"
	KindAnswer Kind = "answer"
)

// Descriptor is a connection descriptor as carried inside a blob. The JSON
// shape matches a browser RTCSessionDescription, so blobs interoperate with
// pages that JSON.stringify their local description.
type Descriptor struct {
	Kind    Kind   `json:"type"`
	Payload string `json:"sdp"`
}

// FromSession converts a pion session description.
func FromSession(sd webrtc.SessionDescription) (Descriptor, error) {
	switch sd.Type {
	case webrtc.SDPTypeOffer:
		return Descriptor{Kind: KindOffer, Payload: sd.SDP}, nil
	case webrtc.SDPTypeAnswer:
		return Descriptor{Kind: KindAnswer, Payload: sd.SDP}, nil
	default:
		return Descriptor{}, fmt.Errorf("unsupported session description type %q", sd.Type.String())
	}
}

// Session converts the descriptor back into a pion session description.
func (d Descriptor) Session() webrtc.SessionDescription {
	t := webrtc.SDPTypeOffer
	if d.Kind == KindAnswer {
		t = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: t, SDP: d.Payload}
}

// EncodeDescriptor serializes d and encodes it as a blob.
func EncodeDescriptor(d Descriptor) (string, error) {
	if d.Kind != KindOffer && d.Kind != KindAnswer {
		return "", fmt.Errorf("unsupported descriptor kind %q", d.Kind)
	}
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	return Encode(string(data)), nil
}

// DecodeDescriptor decodes a blob and parses the descriptor inside it.
func DecodeDescriptor(blob string) (Descriptor, error) {
	text, err := Decode(blob)
	if err != nil {
		return Descriptor{}, err
	}

	var d Descriptor
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return Descriptor{}, &DecodeError{Stage: StageDescriptor, Err: err}
	}

	switch d.Kind {
	case KindOffer, KindAnswer:
	default:
		return Descriptor{}, &DecodeError{Stage: StageDescriptor, Err: fmt.Errorf("unsupported descriptor kind %q", d.Kind)}
	}
	if d.Payload == "" {
		return Descriptor{}, &DecodeError{Stage: StageDescriptor, Err: errors.New("empty session description")}
	}

	return d, nil
}
