// Public domain.

package pcloop

import (
	"sort"
	"time"

	"github.com/soniakeys/unit"
)

// Reason is the closed enumeration of terminal loop states.
type Reason int

const (
	Converged Reason = iota
	Exhausted
	Diverged
	IndexUnavailable
	Canceled
)

var reasonNames = []string{
	"CONVERGED", "EXHAUSTED", "DIVERGED", "INDEX_UNAVAILABLE", "CANCELED",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "INVALID"
	}
	return reasonNames[r]
}

// IterationRecord is the append-only audit entry for one loop pass.  The
// record sequence must be sufficient to reconstruct why a run terminated.
type IterationRecord struct {
	Iter       int
	Window     TimeWindow
	Radius     unit.Angle
	Candidates int // returned by the search
	Accepted   int // candidate transitions into ASSOCIATED, readmissions included
	Rejected   int // candidate transitions into REJECTED
	Demoted    int // post-fit demotions out of ASSOCIATED
	Readmitted int // REJECTED detections re-entering ASSOCIATED
	Associated int // associated count after the pass
	RChi2      float64
	Elapsed    time.Duration
}

// Result is the immutable terminal snapshot of a recovery run.  Final is
// always the last successful estimate; a failed fit is never returned.
type Result struct {
	RunID  string
	Desig  string
	Reason Reason
	Final  OrbitEst
	Ledger map[string]ObsState
	Trace  []IterationRecord
}

// AssociatedIDs returns the final associated detection ids, sorted.
func (r *Result) AssociatedIDs() []string {
	return r.idsWith(Associated)
}

// RejectedIDs returns the final rejected detection ids, sorted.  The
// rejection iteration of each is available as Ledger[id].LastDecided.
func (r *Result) RejectedIDs() []string {
	return r.idsWith(Rejected)
}

func (r *Result) idsWith(m Membership) []string {
	var ids []string
	for id, s := range r.Ledger {
		if s.Membership == m {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Iterations reports how many loop passes were recorded.
func (r *Result) Iterations() int { return len(r.Trace) }
