// Public domain.

package pcloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/soniakeys/unit"
)

// Controller drives the recovery loop for one object.  A controller is
// configured once and Run once; it owns its ledger and trace exclusively,
// so any number of controllers can run concurrently with no shared state.
type Controller struct {
	Fit    FitAdapter
	Search SearchAdapter
	Policy Policy

	Window  TimeWindow
	MaxIter int

	// Epsilon is the fit-quality improvement below which, with no
	// membership change, the loop declares convergence.
	Epsilon float64

	// Search radius control.  The radius for each pass is
	// RadiusScale * estimate uncertainty, clamped to [RadiusMin,
	// RadiusMax], and never allowed to grow between passes once a fit
	// has succeeded.
	RadiusScale float64
	RadiusMin   unit.Angle
	RadiusMax   unit.Angle

	// RunID stamps the result and the log.  Left empty, one is
	// generated per run.
	RunID string

	// Log receives one event per membership decision and per iteration.
	// The zero value discards everything.
	Log zerolog.Logger
}

// Seed is the starting point for a run: a prior orbit estimate, an
// initial observation set, or both.  With no prior, the observations
// must be sufficient for the fit adapter to produce a first estimate.
type Seed struct {
	Desig string
	Prior *OrbitEst
	Obs   []Det
}

func (c *Controller) validate() error {
	if c.Fit == nil || c.Search == nil {
		return errors.New("pcloop: controller needs both a fit and a search adapter")
	}
	if c.MaxIter < 1 {
		return errors.New("pcloop: MaxIter must be at least 1")
	}
	if c.Epsilon < 0 {
		return errors.New("pcloop: Epsilon must not be negative")
	}
	if !(c.RadiusScale > 0) {
		return errors.New("pcloop: RadiusScale must be positive")
	}
	if c.RadiusMax > 0 && c.RadiusMin > c.RadiusMax {
		return errors.New("pcloop: RadiusMin exceeds RadiusMax")
	}
	return c.Policy.Validate()
}

// radius sizes the uncertainty region for the next search pass.  prev is
// the cap from the previous pass, zero before the first successful fit.
func (c *Controller) radius(est OrbitEst, prev unit.Angle) unit.Angle {
	r := unit.Angle(float64(est.Unc) * c.RadiusScale)
	if r < c.RadiusMin {
		r = c.RadiusMin
	}
	if c.RadiusMax > 0 && r > c.RadiusMax {
		r = c.RadiusMax
	}
	if prev > 0 && r > prev {
		r = prev
	}
	return r
}

// Run executes the loop to a terminal state and assembles the result.
//
// Only ErrInsufficientSeed, ledger contract violations, and controller
// misconfiguration return an error in place of a result.  Fit and search
// failures terminate the loop and are reported as the result's reason,
// with the last successful estimate preserved.
//
// ctx is consulted between iterations only; the ledger and the current
// estimate are never left half-updated by a cancellation.
func (c *Controller) Run(ctx context.Context, seed Seed) (*Result, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	runID := c.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := c.Log.With().Str("run", runID).Str("desig", seed.Desig).Logger()

	if seed.Prior == nil && len(seed.Obs) == 0 {
		return nil, ErrInsufficientSeed
	}

	led := NewLedger()
	led.Register(seed.Obs, 0)
	for _, d := range seed.Obs {
		if _, err := led.Decide(d.ID, Associated, 0, 0); err != nil {
			return nil, err
		}
	}

	var est OrbitEst
	fitted := false
	if seed.Prior != nil {
		est = *seed.Prior
	} else {
		// Bootstrap an estimate from the seed observations.  With no
		// prior to fall back on, a failed bootstrap is an unusable
		// seed, not a DIVERGED result.
		e, resid, err := c.Fit.Fit(nil, led.Associated())
		if err != nil {
			return nil, fmt.Errorf("%w (bootstrap fit: %v)", ErrInsufficientSeed, err)
		}
		est = e
		fitted = true
		if err := c.refresh(led, resid, 0); err != nil {
			return nil, err
		}
		log.Debug().Float64("rchi2", est.RChi2).Msg("bootstrap fit")
	}

	prevQual := est.RChi2
	var prevRadius unit.Angle
	if fitted {
		prevRadius = c.radius(est, 0)
	}
	var trace []IterationRecord
	reason := Exhausted

	for k := 1; k <= c.MaxIter; k++ {
		if ctx.Err() != nil {
			reason = Canceled
			log.Warn().Int("iter", k).Msg("canceled between iterations")
			break
		}
		start := time.Now()
		rec := IterationRecord{Iter: k, Window: c.Window}

		var radCap unit.Angle
		if fitted {
			radCap = prevRadius
		}
		rec.Radius = c.radius(est, radCap)

		cands, err := c.Search.Search(est, c.Window, rec.Radius)
		if err != nil {
			// Degrade to the best orbit found so far.  A missing
			// precovery pass does not invalidate an existing fit.
			reason = IndexUnavailable
			rec.Elapsed = time.Since(start)
			trace = append(trace, rec)
			log.Warn().Int("iter", k).Err(err).Msg("search failed")
			break
		}
		sortCands(cands)
		rec.Candidates = len(cands)
		led.Register(candDets(cands), k)

		accept, reject := c.Policy.Partition(cands)
		for _, cd := range accept {
			m, _ := led.Membership(cd.ID)
			if m == Associated {
				// already trusted; the post-fit rescore covers it
				continue
			}
			if _, err := led.Decide(cd.ID, Associated, cd.Resid, k); err != nil {
				return nil, err
			}
			rec.Accepted++
			if m == Rejected {
				rec.Readmitted++
				log.Info().Int("iter", k).Str("obs", cd.ID).
					Float64("resid", cd.Resid).Msg("readmitted")
				continue
			}
			log.Debug().Int("iter", k).Str("obs", cd.ID).
				Float64("resid", cd.Resid).Msg("accepted")
		}
		for _, cd := range reject {
			m, _ := led.Membership(cd.ID)
			if m == Associated {
				// keep; only the post-fit rescore can demote
				continue
			}
			if _, err := led.Decide(cd.ID, Rejected, cd.Resid, k); err != nil {
				return nil, err
			}
			if m == Untested {
				rec.Rejected++
				log.Debug().Int("iter", k).Str("obs", cd.ID).
					Float64("resid", cd.Resid).Msg("rejected")
			}
		}

		snap := led.Associated()
		e, resid, err := c.Fit.Fit(&est, snap)
		if err != nil {
			reason = Diverged
			rec.Elapsed = time.Since(start)
			trace = append(trace, rec)
			log.Warn().Int("iter", k).Err(err).Msg("fit failed")
			break
		}

		// Rescore every associated detection against its post-fit
		// residual; demote past the demotion boundary, refresh the rest.
		for _, d := range snap {
			r, ok := resid[d.ID]
			if !ok {
				continue
			}
			if c.Policy.Demote(r) {
				if _, err := led.Decide(d.ID, Rejected, r, k); err != nil {
					return nil, err
				}
				rec.Demoted++
				log.Info().Int("iter", k).Str("obs", d.ID).
					Float64("resid", r).Msg("demoted")
				continue
			}
			if _, err := led.Decide(d.ID, Associated, r, k); err != nil {
				return nil, err
			}
		}

		est = e
		fitted = true
		prevRadius = rec.Radius
		rec.Associated, _, _ = led.Counts()
		rec.RChi2 = est.RChi2
		rec.Elapsed = time.Since(start)
		trace = append(trace, rec)

		changed := rec.Accepted + rec.Rejected + rec.Demoted
		improvement := prevQual - est.RChi2
		log.Debug().Int("iter", k).Int("changed", changed).
			Float64("rchi2", est.RChi2).Float64("improvement", improvement).
			Msg("iteration")
		if changed == 0 && improvement < c.Epsilon {
			reason = Converged
			break
		}
		prevQual = est.RChi2
	}

	res := &Result{
		RunID:  runID,
		Desig:  seed.Desig,
		Reason: reason,
		Final:  est,
		Ledger: led.Snapshot(),
		Trace:  trace,
	}
	a, rej, _ := led.Counts()
	log.Info().Stringer("reason", reason).Int("iterations", len(trace)).
		Int("associated", a).Int("rejected", rej).
		Float64("rchi2", est.RChi2).Msg("run complete")
	return res, nil
}

// refresh records post-fit residuals for associated detections without
// changing membership.
func (c *Controller) refresh(led *Ledger, resid map[string]float64, iter int) error {
	for _, d := range led.Associated() {
		if r, ok := resid[d.ID]; ok {
			if _, err := led.Decide(d.ID, Associated, r, iter); err != nil {
				return err
			}
		}
	}
	return nil
}

func candDets(cands []Cand) []Det {
	dets := make([]Det, len(cands))
	for i, c := range cands {
		dets[i] = c.Det
	}
	return dets
}
