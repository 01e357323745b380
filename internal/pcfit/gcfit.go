// Public domain.

// Package pcfit is the built-in differential corrector.
//
// It models the object's short-arc sky motion as a linear great circle,
// fit by Levenberg-Marquardt over all associated observations.  That is
// deliberately the same machinery digest2-style short-arc handling uses:
// good enough to score residuals and predict positions over a modest
// window, with no force model.  A heavier solver slots in behind the
// same pcloop.FitAdapter contract.
package pcfit

import (
	"fmt"
	"math"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/lmfit"
	"github.com/soniakeys/unit"

	"github.com/soniakeys/precover/internal/pcloop"
)

// Params layout of estimates produced here: reference unit vector at
// Epoch, great-circle pole unit vector, angular rate in radians per day.
const nParams = 7

// GCFit implements pcloop.FitAdapter with a great-circle fit.
type GCFit struct {
	// MaxRChi2, when positive, declares a fit diverged if the reduced
	// chi-square exceeds it.
	MaxRChi2 float64
}

// Fit fits a great circle to obs and returns the estimate with
// sigma-normalized residuals per observation id.  The prior is unused by
// this corrector; each fit is fresh from the observations.
func (g GCFit) Fit(prior *pcloop.OrbitEst, obs []pcloop.Det) (pcloop.OrbitEst, map[string]float64, error) {
	var est pcloop.OrbitEst
	if len(obs) < 2 {
		return est, nil, fmt.Errorf("%w: %d observations, great circle needs 2",
			pcloop.ErrFitUnderdetermined, len(obs))
	}
	n := len(obs)
	t := make([]float64, n)
	s := make(coord.EquaS, n)
	var sigSum float64
	for i, d := range obs {
		t[i] = d.MJD()
		s[i] = d.Equa()
		sigSum += sigmaOf(d).Rad()
	}
	if t[n-1] == t[0] {
		return est, nil, fmt.Errorf("%w: no time spanned by arc",
			pcloop.ErrFitUnderdetermined)
	}
	meanSig := sigSum / float64(n)

	lmf := lmfit.New(t, s)
	rms := lmf.Rms()

	resid := make(map[string]float64, n)
	var chi2 float64
	for i, d := range obs {
		sep := Sep(s[i], *lmf.Pos(t[i]))
		r := sep.Rad() / sigmaOf(d).Rad()
		resid[d.ID] = r
		chi2 += r * r
	}
	rchi2 := 0.
	if dof := 2*n - 4; dof > 0 {
		rchi2 = chi2 / float64(dof)
	}
	if math.IsNaN(rchi2) || math.IsInf(rchi2, 0) {
		return est, nil, fmt.Errorf("%w: non-finite fit quality", pcloop.ErrFitDiverged)
	}
	if g.MaxRChi2 > 0 && rchi2 > g.MaxRChi2 {
		return est, nil, fmt.Errorf("%w: reduced chi-square %.3g exceeds %.3g",
			pcloop.ErrFitDiverged, rchi2, g.MaxRChi2)
	}

	// Extract pole and rate from two fitted positions at the arc ends.
	p0 := *lmf.Pos(t[0])
	p1 := *lmf.Pos(t[n-1])
	c0 := cart(p0)
	c1 := cart(p1)
	pole, ok := unitCross(c0, c1)
	if !ok {
		return est, nil, fmt.Errorf("%w: arc shows no sky motion", pcloop.ErrFitDiverged)
	}
	rate := Sep(p0, p1).Rad() / (t[n-1] - t[0])

	unc := rms
	if unc == 0 {
		unc = unit.Angle(meanSig)
	}
	est = pcloop.OrbitEst{
		Epoch:  t[0],
		Params: []float64{c0.X, c0.Y, c0.Z, pole.X, pole.Y, pole.Z, rate},
		Unc:    unc,
		RChi2:  rchi2,
		NObs:   n,
	}
	return est, resid, nil
}

func sigmaOf(d pcloop.Det) unit.Angle {
	if d.Sigma > 0 {
		return d.Sigma
	}
	return unit.AngleFromSec(1)
}

// Predict evaluates the estimate's sky position at mjd by rotating the
// reference vector about the pole.  ok is false if the estimate was not
// produced by this corrector.
func Predict(est pcloop.OrbitEst, mjd float64) (pos coord.Equa, ok bool) {
	if len(est.Params) != nParams {
		return pos, false
	}
	r := coord.Cart{X: est.Params[0], Y: est.Params[1], Z: est.Params[2]}
	k := coord.Cart{X: est.Params[3], Y: est.Params[4], Z: est.Params[5]}
	th := est.Params[6] * (mjd - est.Epoch)
	sth, cth := math.Sincos(th)
	kxr := cross(k, r)
	kdr := k.X*r.X + k.Y*r.Y + k.Z*r.Z
	v := coord.Cart{
		X: r.X*cth + kxr.X*sth + k.X*kdr*(1-cth),
		Y: r.Y*cth + kxr.Y*sth + k.Y*kdr*(1-cth),
		Z: r.Z*cth + kxr.Z*sth + k.Z*kdr*(1-cth),
	}
	ra := math.Atan2(v.Y, v.X)
	if ra < 0 {
		ra += 2 * math.Pi
	}
	pos = coord.Equa{
		RA:  unit.RAFromRad(ra),
		Dec: unit.Angle(math.Asin(clamp1(v.Z))),
	}
	return pos, true
}

// Sep returns the angular separation of two sky positions.
func Sep(a, b coord.Equa) unit.Angle {
	sd := math.Sin((b.Dec - a.Dec).Rad() * .5)
	sr := math.Sin((b.RA - a.RA).Rad() * .5)
	h := sd*sd + math.Cos(a.Dec.Rad())*math.Cos(b.Dec.Rad())*sr*sr
	return unit.Angle(2 * math.Asin(clamp1(math.Sqrt(h))))
}

func cart(e coord.Equa) coord.Cart {
	sdec, cdec := math.Sincos(e.Dec.Rad())
	sra, cra := math.Sincos(e.RA.Rad())
	return coord.Cart{X: cra * cdec, Y: sra * cdec, Z: sdec}
}

func cross(a, b coord.Cart) coord.Cart {
	return coord.Cart{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func unitCross(a, b coord.Cart) (coord.Cart, bool) {
	c := cross(a, b)
	m := math.Sqrt(c.Square())
	if m < 1e-12 {
		return c, false
	}
	c.MulScalar(&c, 1/m)
	return c, true
}

func clamp1(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
