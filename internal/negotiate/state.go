package negotiate

import (
	"github.com/1ureka/pastelink/internal/config"
)

// State is the orchestrator's logical negotiation state.
type State int

const (
	StateIdle State = iota
	StateCreatingOffer
	StateAwaitingRemoteOffer
	StateCreatingAnswer
	StateAwaitingPathGathering
	StateOfferReady
	StateAnswerReady
	StateAwaitingRemoteAnswer
	StateConnected
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                  "Idle",
	StateCreatingOffer:         "CreatingOffer",
	StateAwaitingRemoteOffer:   "AwaitingRemoteOffer",
	StateCreatingAnswer:        "CreatingAnswer",
	StateAwaitingPathGathering: "AwaitingPathGathering",
	StateOfferReady:            "OfferReady",
	StateAnswerReady:           "AnswerReady",
	StateAwaitingRemoteAnswer:  "AwaitingRemoteAnswer",
	StateConnected:             "Connected",
	StateFailed:                "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// transitions lists the forward edges of each role's path. Two edges are
// implicit for every role: any state may move to Failed, and any state with
// a live connection may move to Connected once the transport says so.
// Failed behaves like Idle when a new attempt starts.
var transitions = map[config.Role]map[State][]State{
	config.RoleInitiator: {
		StateIdle:                  {StateCreatingOffer},
		StateCreatingOffer:         {StateAwaitingPathGathering},
		StateAwaitingPathGathering: {StateOfferReady},
		StateOfferReady:            {StateAwaitingRemoteAnswer},
	},
	config.RoleResponder: {
		StateIdle:                  {StateAwaitingRemoteOffer},
		StateAwaitingRemoteOffer:   {StateCreatingAnswer},
		StateCreatingAnswer:        {StateAwaitingPathGathering},
		StateAwaitingPathGathering: {StateAnswerReady},
	},
}

// canTransition reports whether role may move from one state to another.
func canTransition(role config.Role, from, to State) bool {
	switch to {
	case StateFailed:
		return true
	case StateConnected:
		return from != StateIdle && from != StateFailed && from != StateConnected
	}

	if from == StateFailed {
		from = StateIdle
	}
	for _, next := range transitions[role][from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReadyState mirrors a data channel's readyState.
type ReadyState int

const (
	ReadyStateNone ReadyState = iota // no channel attached yet
	ReadyStateConnecting
	ReadyStateOpen
	ReadyStateClosing
	ReadyStateClosed
)

func (r ReadyState) String() string {
	switch r {
	case ReadyStateConnecting:
		return "connecting"
	case ReadyStateOpen:
		return "open"
	case ReadyStateClosing:
		return "closing"
	case ReadyStateClosed:
		return "closed"
	default:
		return "none"
	}
}
