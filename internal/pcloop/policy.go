// Public domain.

package pcloop

import (
	"errors"
	"fmt"
)

// Policy classifies candidate detections against the current acceptance
// threshold, and re-scores already associated detections for demotion.
// Thresholds are in sigma-normalized residual units.
//
// Demotion uses a separate, larger boundary, Thresh*DemoteFactor, so a
// detection sitting near the acceptance threshold is not thrashed in and
// out of the fit.  DemoteFactor is a required setting and must exceed 1;
// there is no default.
type Policy struct {
	Thresh       float64
	DemoteFactor float64

	// AcceptEqual resolves a candidate at exactly Thresh.  The default,
	// false, rejects it.
	AcceptEqual bool
}

var errNoThresh = errors.New("pcloop: acceptance threshold must be positive")

// Validate checks the policy settings.  A DemoteFactor at or below 1
// collapses the accept and demote boundaries and is refused.
func (p Policy) Validate() error {
	if !(p.Thresh > 0) {
		return errNoThresh
	}
	if !(p.DemoteFactor > 1) {
		return fmt.Errorf("pcloop: demotion factor %g must be > 1", p.DemoteFactor)
	}
	return nil
}

// Accept reports whether a predicted residual clears the acceptance
// threshold.
func (p Policy) Accept(resid float64) bool {
	if p.AcceptEqual {
		return resid <= p.Thresh
	}
	return resid < p.Thresh
}

// Demote reports whether a post-fit residual of an associated detection
// exceeds the demotion boundary.
func (p Policy) Demote(resid float64) bool {
	return resid > p.Thresh*p.DemoteFactor
}

// Partition splits candidates into accepted and rejected by predicted
// residual.  Input order is preserved within each part.
func (p Policy) Partition(cands []Cand) (accept, reject []Cand) {
	for _, c := range cands {
		if p.Accept(c.Resid) {
			accept = append(accept, c)
		} else {
			reject = append(reject, c)
		}
	}
	return
}
