// Public domain.

package pcfit_test

import (
	"errors"
	"math"
	"testing"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/observation"
	"github.com/soniakeys/unit"

	"github.com/soniakeys/precover/internal/pcfit"
	"github.com/soniakeys/precover/internal/pcloop"
)

func det(id string, mjd, ra, dec float64) pcloop.Det {
	return pcloop.Det{
		ID: id,
		Obs: &observation.SiteObs{
			VMeas: observation.VMeas{
				MJD: mjd,
				Equa: coord.Equa{
					RA:  unit.RAFromRad(ra),
					Dec: unit.Angle(dec),
				},
				Qual: "500",
			},
		},
		Sigma: unit.AngleFromSec(1),
	}
}

// track generates n detections drifting along the equator at a constant
// rate, radians per day.
func track(n int, mjd0, ra0, rate float64) []pcloop.Det {
	dets := make([]pcloop.Det, n)
	for i := range dets {
		dt := float64(i)
		dets[i] = det(string(rune('a'+i)), mjd0+dt, ra0+rate*dt, 0)
	}
	return dets
}

func TestFitRecoversTrack(t *testing.T) {
	obs := track(5, 60000, 1, .01)
	est, resid, err := pcfit.GCFit{}.Fit(nil, obs)
	if err != nil {
		t.Fatal(err)
	}
	if est.NObs != 5 || est.Epoch != 60000 {
		t.Fatalf("est: %+v", est)
	}
	for id, r := range resid {
		if r > .1 {
			t.Errorf("residual of exact observation %s: %g", id, r)
		}
	}
	if est.RChi2 > .1 {
		t.Fatal("rchi2 of exact track:", est.RChi2)
	}

	// extrapolate two days past the arc
	pos, ok := pcfit.Predict(est, 60006)
	if !ok {
		t.Fatal("Predict refused its own estimate")
	}
	want := coord.Equa{RA: unit.RAFromRad(1 + .06)}
	if sep := pcfit.Sep(pos, want); sep.Sec() > 1 {
		t.Fatalf("predicted %g from expected position, arc seconds", sep.Sec())
	}
}

func TestFitOutlier(t *testing.T) {
	obs := track(6, 60000, 1, .01)
	// push one observation 20 arc seconds off the circle
	bad := obs[3]
	m := bad.Obs.Meas()
	obs[3] = det(bad.ID, m.MJD, m.RA.Rad(), m.Dec.Rad()+unit.AngleFromSec(20).Rad())

	_, resid, err := pcfit.GCFit{}.Fit(nil, obs)
	if err != nil {
		t.Fatal(err)
	}
	if resid[obs[3].ID] < 5 {
		t.Fatal("outlier residual", resid[obs[3].ID])
	}
	for _, d := range obs[:3] {
		if resid[d.ID] > 4 {
			t.Errorf("inlier %s residual %g", d.ID, resid[d.ID])
		}
	}
}

func TestFitUnderdetermined(t *testing.T) {
	// one observation
	_, _, err := pcfit.GCFit{}.Fit(nil, track(1, 60000, 1, .01))
	if !errors.Is(err, pcloop.ErrFitUnderdetermined) {
		t.Fatal("single observation:", err)
	}
	// two observations, no time spanned
	obs := []pcloop.Det{det("a", 60000, 1, 0), det("b", 60000, 1.001, 0)}
	_, _, err = pcfit.GCFit{}.Fit(nil, obs)
	if !errors.Is(err, pcloop.ErrFitUnderdetermined) {
		t.Fatal("zero arc span:", err)
	}
}

func TestFitNoMotion(t *testing.T) {
	obs := []pcloop.Det{det("a", 60000, 1, .5), det("b", 60001, 1, .5)}
	_, _, err := pcfit.GCFit{}.Fit(nil, obs)
	if !errors.Is(err, pcloop.ErrFitDiverged) {
		t.Fatal("stationary arc:", err)
	}
}

func TestFitMaxRChi2(t *testing.T) {
	obs := track(6, 60000, 1, .01)
	m := obs[3].Obs.Meas()
	obs[3] = det(obs[3].ID, m.MJD, m.RA.Rad(), m.Dec.Rad()+unit.AngleFromSec(60).Rad())
	_, _, err := pcfit.GCFit{MaxRChi2: 3}.Fit(nil, obs)
	if !errors.Is(err, pcloop.ErrFitDiverged) {
		t.Fatal("gross outlier under MaxRChi2:", err)
	}
}

func TestSep(t *testing.T) {
	a := coord.Equa{RA: unit.RAFromRad(1)}
	if s := pcfit.Sep(a, a); s != 0 {
		t.Fatal("self separation", s)
	}
	b := coord.Equa{RA: unit.RAFromRad(1), Dec: unit.Angle(.01)}
	if s := pcfit.Sep(a, b).Rad(); math.Abs(s-.01) > 1e-9 {
		t.Fatal("meridian separation", s)
	}
	// a degree of RA at the pole is nearly nothing
	p := coord.Equa{Dec: unit.Angle(1.5)}
	q := coord.Equa{RA: unit.RAFromRad(math.Pi / 180), Dec: unit.Angle(1.5)}
	if s := pcfit.Sep(p, q).Rad(); s > math.Pi/180*math.Cos(1.5)*1.01 {
		t.Fatal("separation near pole not foreshortened:", s)
	}
}

func TestPredictForeignEstimate(t *testing.T) {
	if _, ok := pcfit.Predict(pcloop.OrbitEst{Params: []float64{1, 2}}, 60000); ok {
		t.Fatal("Predict accepted an estimate it did not produce")
	}
}
