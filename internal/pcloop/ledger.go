// Public domain.

package pcloop

import (
	"errors"
	"sort"
)

// Membership is the trust classification of a tracked detection.
type Membership int

const (
	Untested Membership = iota
	Associated
	Rejected
)

var membershipNames = []string{"UNTESTED", "ASSOCIATED", "REJECTED"}

func (m Membership) String() string {
	if m < 0 || int(m) >= len(membershipNames) {
		return "INVALID"
	}
	return membershipNames[m]
}

// ObsState is the per-detection record kept by the ledger.
type ObsState struct {
	Det         Det
	Membership  Membership
	LastResid   float64 // sigma-normalized, from the most recent decision
	FirstSeen   int     // iteration the detection was registered
	LastDecided int     // iteration of the most recent decision
	Flips       int     // membership changes after the first decision
}

var errUntestedDecision = errors.New("pcloop: cannot decide a detection back to UNTESTED")

// Ledger tracks membership state and residual history for every
// detection a run has ever seen.  All mutation goes through Register and
// Decide, driven by the controller; a detection that ever reaches
// ASSOCIATED and is later removed remains present as REJECTED with the
// iteration that decided it.
type Ledger struct {
	m map[string]*ObsState
}

func NewLedger() *Ledger {
	return &Ledger{m: make(map[string]*ObsState)}
}

// Register adds detections not already tracked, as UNTESTED.  Duplicate
// ids, within one call or across iterations, are ignored.  It returns
// the number of newly tracked detections.
func (l *Ledger) Register(dets []Det, iter int) (added int) {
	for _, d := range dets {
		if _, ok := l.m[d.ID]; ok {
			continue
		}
		l.m[d.ID] = &ObsState{Det: d, FirstSeen: iter}
		added++
	}
	return added
}

// Decide transitions a detection to membership m, recording the residual
// and the iteration.  Deciding a detection to the membership it already
// holds refreshes the residual without counting a flip.  The reported
// flipped is true when a previously decided detection changed
// membership.  Unregistered ids are an UnknownObsError.
func (l *Ledger) Decide(id string, m Membership, resid float64, iter int) (flipped bool, err error) {
	if m == Untested {
		return false, errUntestedDecision
	}
	s, ok := l.m[id]
	if !ok {
		return false, UnknownObsError{ID: id}
	}
	if s.Membership != Untested && s.Membership != m {
		s.Flips++
		flipped = true
	}
	s.Membership = m
	s.LastResid = resid
	s.LastDecided = iter
	return flipped, nil
}

// Membership reports the current classification of a detection.
func (l *Ledger) Membership(id string) (Membership, bool) {
	s, ok := l.m[id]
	if !ok {
		return Untested, false
	}
	return s.Membership, true
}

// Associated returns the current ASSOCIATED detections ordered by
// ascending time, ties broken by id.  The ordering is what makes repeat
// runs against scripted collaborators reproduce bit-identical traces.
func (l *Ledger) Associated() []Det {
	var dets []Det
	for _, s := range l.m {
		if s.Membership == Associated {
			dets = append(dets, s.Det)
		}
	}
	sortDets(dets)
	return dets
}

// Counts reports how many detections hold each membership.
func (l *Ledger) Counts() (associated, rejected, untested int) {
	for _, s := range l.m {
		switch s.Membership {
		case Associated:
			associated++
		case Rejected:
			rejected++
		default:
			untested++
		}
	}
	return
}

// Snapshot copies the full ledger state.
func (l *Ledger) Snapshot() map[string]ObsState {
	snap := make(map[string]ObsState, len(l.m))
	for id, s := range l.m {
		snap[id] = *s
	}
	return snap
}

func sortDets(dets []Det) {
	sort.Slice(dets, func(i, j int) bool {
		ti, tj := dets[i].MJD(), dets[j].MJD()
		if ti != tj {
			return ti < tj
		}
		return dets[i].ID < dets[j].ID
	})
}

func sortCands(cands []Cand) {
	sort.Slice(cands, func(i, j int) bool {
		ti, tj := cands[i].MJD(), cands[j].MJD()
		if ti != tj {
			return ti < tj
		}
		return cands[i].ID < cands[j].ID
	})
}
