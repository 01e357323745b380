// Public domain.

// Package pcloop implements the iterative precovery and differential
// correction loop.
//
// The loop alternates two steps for a single object: refine the orbit
// against the currently associated observations, and search a historical
// detection index for further detections consistent with the refined
// orbit's uncertainty region.  Accepted detections are folded back into
// the next fit.  The loop terminates when the associated set and the fit
// quality stabilize, or when an iteration budget runs out, or when a
// collaborator fails in a way the loop can only degrade around.
//
// The orbit solver and the detection index are collaborators behind the
// FitAdapter and SearchAdapter interfaces.  The loop never inspects
// solver internals; it sequences calls and decides what evidence to
// trust.
package pcloop

import (
	"errors"
	"fmt"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/observation"
	"github.com/soniakeys/unit"
)

// Det is a single detection of the object, immutable once ingested.
// Obs carries the measured time and sky position in the observation
// package's terms.  Sigma is the astrometric error adopted for the
// observing site, the unit residuals are normalized by.
type Det struct {
	ID      string
	Obs     observation.VObs
	Sigma   unit.Angle
	Dataset string
}

// MJD returns the detection time.
func (d Det) MJD() float64 { return d.Obs.Meas().MJD }

// Equa returns the measured sky position.
func (d Det) Equa() coord.Equa { return d.Obs.Meas().Equa }

// OrbitEst is the estimate produced by a fit.  The loop treats Params as
// opaque; only Unc, RChi2, and NObs drive control decisions.  A new
// estimate replaces the old one atomically after each successful fit.
type OrbitEst struct {
	Epoch  float64    // MJD of the reference position
	Params []float64  // solver state vector, opaque to the loop
	Unc    unit.Angle // one sigma sky-plane uncertainty
	RChi2  float64    // fit quality, reduced chi-square
	NObs   int        // observations contributing to the fit
}

// TimeWindow bounds a precovery search in MJD.
type TimeWindow struct {
	First, Last float64
}

// Cand is a candidate detection returned by a search, paired with the
// sigma-normalized residual of its position against the predicted
// position of the orbit estimate at the detection time.
type Cand struct {
	Det
	Resid float64
}

// FitAdapter wraps the external orbit solver.  Fit refines prior against
// obs and returns the new estimate along with sigma-normalized post-fit
// residuals keyed by detection id.  A nil prior asks for a fit from the
// observations alone.  Failures are ErrFitDiverged or
// ErrFitUnderdetermined, possibly wrapped.
type FitAdapter interface {
	Fit(prior *OrbitEst, obs []Det) (OrbitEst, map[string]float64, error)
}

// SearchAdapter wraps the external precovery index.  An empty candidate
// set is a normal result.  Failure to reach the index at all is
// ErrIndexUnavailable, possibly wrapped; the loop does not retry.
type SearchAdapter interface {
	Search(est OrbitEst, w TimeWindow, radius unit.Angle) ([]Cand, error)
}

// Failure taxonomy.  Only ErrInsufficientSeed and UnknownObsError abort
// a run without producing a Result; the others are captured into the
// result's termination reason.
var (
	ErrInsufficientSeed   = errors.New("pcloop: seed has neither prior orbit nor usable observations")
	ErrFitDiverged        = errors.New("pcloop: fit diverged")
	ErrFitUnderdetermined = errors.New("pcloop: fit underdetermined")
	ErrIndexUnavailable   = errors.New("pcloop: detection index unavailable")
)

// UnknownObsError reports a decision on a detection id that was never
// registered.  It indicates a bug in candidate registration ordering,
// not a data condition.
type UnknownObsError struct {
	ID string
}

func (e UnknownObsError) Error() string {
	return fmt.Sprintf("pcloop: decision on unregistered observation %q", e.ID)
}
