// Public domain.

package pcindex_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/soniakeys/unit"

	"github.com/soniakeys/precover/internal/pcindex"
	"github.com/soniakeys/precover/internal/pcloop"
)

// testEst is an estimate tracking the equator from RA 1 radian at MJD
// 60000, drifting .01 radians per day.
func testEst() pcloop.OrbitEst {
	s, c := math.Sincos(1.)
	return pcloop.OrbitEst{
		Epoch:  60000,
		Params: []float64{c, s, 0, 0, 0, 1, .01},
		Unc:    unit.AngleFromSec(10),
		NObs:   2,
	}
}

func openTestIndex(t *testing.T, rows []pcindex.Row) *pcindex.Index {
	t.Helper()
	x, err := pcindex.Create(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { x.Close() })
	if err := x.AddBatch(rows); err != nil {
		t.Fatal(err)
	}
	return x
}

func TestIndexCount(t *testing.T) {
	x := openTestIndex(t, []pcindex.Row{
		{ID: "a", MJD: 60000, RA: 1, Dec: 0, Sigma: 1, Obscode: "500", Dataset: "d"},
		{ID: "b", MJD: 60001, RA: 1, Dec: 0, Sigma: 1, Obscode: "500", Dataset: "d"},
	})
	n, err := x.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatal("count", n)
	}
}

func TestIndexAppendOnly(t *testing.T) {
	r := pcindex.Row{ID: "a", MJD: 60000, RA: 1, Dec: 0, Sigma: 1, Obscode: "500", Dataset: "d"}
	x := openTestIndex(t, []pcindex.Row{r})
	if err := x.AddBatch([]pcindex.Row{r}); err == nil {
		t.Fatal("duplicate id accepted")
	}
	// the failed batch must not have half-applied
	n, err := x.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatal("count after failed batch", n)
	}
}

func TestSearch(t *testing.T) {
	offSec := unit.AngleFromSec(5).Rad()
	x := openTestIndex(t, []pcindex.Row{
		// on the track
		{ID: "on", MJD: 60005, RA: 1.05, Dec: 0, Sigma: 1, Obscode: "500", Dataset: "d"},
		// 5 arc seconds off, inside the radius
		{ID: "near", MJD: 60010, RA: 1.1, Dec: offSec, Sigma: 2, Obscode: "500", Dataset: "d"},
		// half a degree off
		{ID: "far", MJD: 60007, RA: 1.07, Dec: math.Pi / 360, Sigma: 1, Obscode: "500", Dataset: "d"},
		// before the window
		{ID: "early", MJD: 59000, RA: 1, Dec: 0, Sigma: 1, Obscode: "500", Dataset: "d"},
	})
	w := pcloop.TimeWindow{First: 60001, Last: 60020}
	cands, err := x.Search(testEst(), w, unit.AngleFromSec(10))
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates", len(cands))
	}
	// time order from the query
	if cands[0].ID != "on" || cands[1].ID != "near" {
		t.Fatal("order:", cands[0].ID, cands[1].ID)
	}
	if cands[0].Resid > .01 {
		t.Fatal("on-track residual", cands[0].Resid)
	}
	// 5 arc seconds at sigma 2 arc seconds
	if r := cands[1].Resid; math.Abs(r-2.5) > .1 {
		t.Fatal("near residual", r)
	}
	if cands[1].Dataset != "d" || cands[1].MJD() != 60010 {
		t.Fatalf("candidate detection: %+v", cands[1].Det)
	}
}

func TestSearchSigmaFallback(t *testing.T) {
	x := openTestIndex(t, []pcindex.Row{
		{ID: "a", MJD: 60005, RA: 1.05, Dec: 0, Sigma: 0, Obscode: "500", Dataset: "d"},
	})
	cands, err := x.Search(testEst(), pcloop.TimeWindow{First: 60000, Last: 60020},
		unit.AngleFromSec(10))
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Fatal("candidates", len(cands))
	}
	if s := cands[0].Sigma.Sec(); math.Abs(s-1) > 1e-9 {
		t.Fatal("zero stored sigma not defaulted, got", s)
	}
}

func TestSearchDatasetFilter(t *testing.T) {
	x := openTestIndex(t, []pcindex.Row{
		{ID: "a", MJD: 60005, RA: 1.05, Dec: 0, Sigma: 1, Obscode: "500", Dataset: "atlas"},
		{ID: "b", MJD: 60006, RA: 1.06, Dec: 0, Sigma: 1, Obscode: "500", Dataset: "css"},
	})
	x.Datasets = map[string]bool{"css": true}
	cands, err := x.Search(testEst(), pcloop.TimeWindow{First: 60000, Last: 60020},
		unit.AngleFromSec(10))
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].ID != "b" {
		t.Fatalf("filtered candidates: %d", len(cands))
	}
}

func TestSearchForeignEstimate(t *testing.T) {
	x := openTestIndex(t, []pcindex.Row{
		{ID: "a", MJD: 60005, RA: 1.05, Dec: 0, Sigma: 1, Obscode: "500", Dataset: "d"},
	})
	est := testEst()
	est.Params = est.Params[:2]
	_, err := x.Search(est, pcloop.TimeWindow{First: 60000, Last: 60020},
		unit.AngleFromSec(10))
	if !errors.Is(err, pcloop.ErrIndexUnavailable) {
		t.Fatal(err)
	}
}
