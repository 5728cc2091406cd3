package negotiate

import (
	"github.com/pion/webrtc/v4"
)

// Gatherer detects the moment a Connection's local descriptor becomes final.
//
// Paths may be reported before, during or after the task that applies the
// local descriptor, so readiness needs two facts: the descriptor has been
// applied (Arm) and the end-of-paths sentinel has been seen (Observe(nil)).
// Whichever call completes the pair returns true; every later call returns
// false, including repeated sentinels.
type Gatherer struct {
	armed    bool
	sentinel bool
	fired    bool
	paths    int
}

// NewGatherer returns a gatherer for one Connection.
func NewGatherer() *Gatherer {
	return &Gatherer{}
}

// Observe records one discovered path, or the sentinel when path is nil.
func (g *Gatherer) Observe(path *webrtc.ICECandidate) bool {
	if path == nil {
		g.sentinel = true
	} else {
		g.paths++
	}
	return g.check()
}

// Arm records that the local descriptor has been applied.
func (g *Gatherer) Arm() bool {
	g.armed = true
	return g.check()
}

func (g *Gatherer) check() bool {
	if g.fired || !g.armed || !g.sentinel {
		return false
	}
	g.fired = true
	return true
}

// Complete reports whether the describe-ready notification has fired.
func (g *Gatherer) Complete() bool { return g.fired }

// Paths returns the number of paths discovered so far.
func (g *Gatherer) Paths() int { return g.paths }
