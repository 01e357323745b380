// Public domain.

package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/soniakeys/exit"
	"github.com/soniakeys/mpcformat"
	xrand "golang.org/x/exp/rand"

	"github.com/soniakeys/precover/internal/pcindex"
)

const versionString = "mkindex version 0.1 Go source."
const copyrightString = "Public domain."

func main() {
	defer exit.Handler()

	fnIndex := flag.String("x", "precover.db", "index file to create or append to")
	fnOcd := flag.String("o", "precover.obscodes", "obscode file")
	dataset := flag.String("dataset", "survey", "dataset name for ingested detections")
	obsErr := flag.Float64("obserr", 1, "astrometric error to record, arc seconds")
	synth := flag.Int("synth", 0, "generate this many synthetic tracks instead of reading a file")
	seed := flag.Uint64("seed", 0, "PRNG seed for -synth, 0 seeds from the clock")
	mjd0 := flag.Float64("mjd0", 60000, "end epoch for synthetic tracks")
	days := flag.Float64("days", 30, "time span of synthetic tracks")
	vers := flag.Bool("v", false, "display version and copyright")
	flag.Usage = func() {
		os.Stderr.WriteString(`Usage:
  mkindex [options] <obsfile>      index MPC-format detections
  mkindex [options] -synth <n>     index synthetic test tracks
  mkindex -v                       display version and copyright

For full documentation:
   go doc github.com/soniakeys/precover/mkindex
`)
	}
	flag.Parse()
	if *vers {
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		os.Exit(0)
	}
	if (*synth == 0) == (flag.NArg() != 1) {
		flag.Usage()
		os.Exit(1)
	}

	x, err := pcindex.Create(*fnIndex)
	if err != nil {
		exit.Log(err)
	}
	defer x.Close()

	var rows []pcindex.Row
	if *synth > 0 {
		rnd := xrand.New(&xrand.PCGSource{})
		if *seed != 0 {
			rnd.Seed(*seed)
		} else {
			rnd.Seed(uint64(time.Now().UnixNano()))
		}
		rows = synthRows(rnd, *synth, *mjd0, *days, *obsErr, *dataset)
	} else {
		rows = readRows(flag.Arg(0), *fnOcd, *obsErr, *dataset)
	}

	if err := x.AddBatch(rows); err != nil {
		exit.Log(err)
	}
	n, err := x.Count()
	if err != nil {
		exit.Log(err)
	}
	fmt.Printf("%s: added %d detections, %d total\n", *fnIndex, len(rows), n)
}

// readRows parses an MPC obs80 file into index rows, one per detection.
func readRows(fnObs, fnOcd string, obsErr float64, dataset string) []pcindex.Row {
	ocdMap, err := mpcformat.ReadObscodeDatFile(fnOcd)
	if err != nil {
		if err = mpcformat.FetchObscodeDat(fnOcd); err != nil {
			exit.Log(err)
		}
		if ocdMap, err = mpcformat.ReadObscodeDatFile(fnOcd); err != nil {
			exit.Log(err)
		}
	}
	f, err := os.Open(fnObs)
	if err != nil {
		exit.Log(err)
	}
	defer f.Close()

	var rows []pcindex.Row
	for s := mpcformat.ArcSplitter(f, ocdMap); ; {
		a, err := s()
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := err.(mpcformat.ArcError); ok {
				continue
			}
			exit.Log(err)
		}
		for i, o := range a.Obs {
			m := o.Meas()
			rows = append(rows, pcindex.Row{
				ID:      fmt.Sprintf("%s.%02d", a.Desig, i+1),
				MJD:     m.MJD,
				RA:      m.RA.Rad(),
				Dec:     m.Dec.Rad(),
				Sigma:   obsErr,
				Obscode: m.Qual,
				Dataset: dataset,
			})
		}
	}
	return rows
}

// synthRows generates tracks drifting linearly across the sky with
// positions jittered by the recorded astrometric error.
func synthRows(rnd *xrand.Rand, n int, mjd0, days, obsErr float64, dataset string) []pcindex.Row {
	const perTrack = 20
	sigRad := obsErr * math.Pi / (180 * 3600)
	var rows []pcindex.Row
	for i := 0; i < n; i++ {
		ra := rnd.Float64() * 2 * math.Pi
		dec := (rnd.Float64() - .5) * 2.4
		vr := (rnd.Float64() - .5) * math.Pi / 180 // rad/day
		vd := (rnd.Float64() - .5) * math.Pi / 180
		for j := 0; j < perTrack; j++ {
			dt := days * float64(j) / perTrack
			rows = append(rows, pcindex.Row{
				ID:      fmt.Sprintf("S%04d.%03d", i, j),
				MJD:     mjd0 - days + dt,
				RA:      wrapRA(ra + vr*dt + sigRad*rnd.NormFloat64()),
				Dec:     dec + vd*dt + sigRad*rnd.NormFloat64(),
				Sigma:   obsErr,
				Obscode: "500",
				Dataset: dataset,
			})
		}
	}
	return rows
}

func wrapRA(ra float64) float64 {
	ra = math.Mod(ra, 2*math.Pi)
	if ra < 0 {
		ra += 2 * math.Pi
	}
	return ra
}
