// Public domain.

// Package pcprog is the command line program behind the precover
// command: configuration, detection-index and obscode plumbing, and a
// worker pool recovering many objects concurrently.  Each object gets
// its own controller; workers share nothing but the read-only index.
package pcprog

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/soniakeys/exit"
	"github.com/soniakeys/mpcformat"
	"github.com/soniakeys/observation"
	"github.com/soniakeys/unit"

	"github.com/soniakeys/precover/internal/pcfit"
	"github.com/soniakeys/precover/internal/pcindex"
	"github.com/soniakeys/precover/internal/pcloop"
)

const versionString = "precover version 0.1 Go source."
const copyrightString = "Public domain."

func Main() {
	defer exit.Handler()

	cl := parseCommandLine()
	cfg, err := LoadConfig(cl.fnConfig)
	if err != nil {
		exit.Log(err)
	}
	log := initLogger(cl.logLevel)
	log = log.With().Str("batch", uuid.NewString()).Logger()

	ocdMap := readOcd(cl)
	index, err := pcindex.Open(cl.fnIndex, ocdMap)
	if err != nil {
		exit.Log(err)
	}
	defer index.Close()
	index.Datasets = cfg.datasets()

	if cl.metricsAddr != "" {
		serveMetrics(cl.metricsAddr)
	} else {
		registerMetrics()
	}

	// open seed obs file
	var f *os.File
	if cl.fnObs == "-" {
		f = os.Stdin
		cl.fnObs = "input stream"
	} else {
		var err error
		f, err = os.Open(cl.fnObs)
		if err != nil {
			exit.Log(err)
		}
		defer f.Close()
	}

	// remainder of Main constructs and starts the concurrent parts of
	// the program, the same shape as a digest2 run: a splitter feeding
	// arcs, a dispatcher handing arcs to workers, and in-order result
	// pickup for printing.
	arcChIn := make(chan *observation.Arc)
	errCh := make(chan error)
	go splitter(f, ocdMap, arcChIn, errCh)

	maxWorkers := runtime.GOMAXPROCS(0)
	prCh := make(chan chan string, maxWorkers*2)
	arcChSeq := make(chan *arcSeq)

	go func() {
		for a := range arcChIn {
			rch := make(chan string, 1)
			arcChSeq <- &arcSeq{a, rch}
			prCh <- rch
		}
		close(prCh)
	}()

	go func() {
		for n := 0; n < maxWorkers; n++ {
			a, ok := <-arcChSeq
			if !ok {
				return
			}
			go recoverWorker(cfg, index, log, cl.opt, a, arcChSeq)
		}
	}()

	printHeadings(cl.opt)

	for {
		select {
		case err := <-errCh:
			exit.Log(err)
		case rch, ok := <-prCh:
			if !ok {
				return
			}
			select {
			case err := <-errCh:
				exit.Log(err)
			case r := <-rch:
				fmt.Println(r)
			}
		}
	}
}

type arcSeq struct {
	a   *observation.Arc
	rch chan string
}

// parse errors and invalid arcs are dropped without notification.
func splitter(iObs io.Reader, ocdMap observation.ParallaxMap,
	arcCh chan *observation.Arc, errCh chan error) {
	for s := mpcformat.ArcSplitter(iObs, ocdMap); ; {
		a, err := s()
		if err == nil {
			sendValid(a, arcCh)
			continue
		}
		if err == io.EOF {
			break
		}
		if _, ok := err.(mpcformat.ArcError); ok {
			continue
		}
		errCh <- err
		break
	}
	close(arcCh)
}

// checks that observations make a usable seed arc, allocates and sends.
func sendValid(a *observation.Arc, arcCh chan *observation.Arc) {
	if len(a.Obs) < 2 {
		return
	}
	// observation times must be positive and strictly increasing
	var t0 float64
	for _, o := range a.Obs {
		t := o.Meas().MJD
		if t <= t0 {
			return
		}
		t0 = t
	}
	// object must show motion over the arc
	first := a.Obs[0].Meas()
	last := a.Obs[len(a.Obs)-1].Meas()
	if first.RA == last.RA && first.Dec == last.Dec {
		return
	}
	arcCh <- &observation.Arc{
		Desig: a.Desig,
		Obs:   append([]observation.VObs{}, a.Obs...),
	}
}

// recoverWorker runs recovery for arcs as the dispatcher supplies them.
// The first arc is passed directly; more arrive over arcCh until the
// program shuts down.
func recoverWorker(cfg Config, index *pcindex.Index, log zerolog.Logger,
	opt *outputOptions, a *arcSeq, arcCh chan *arcSeq) {
	for ; ; a = <-arcCh {
		start := time.Now()
		ctrl := &pcloop.Controller{
			Fit:         pcfit.GCFit{MaxRChi2: cfg.MaxRChi2},
			Search:      index,
			Policy:      cfg.policy(),
			Window:      cfg.window(),
			MaxIter:     cfg.MaxIter,
			Epsilon:     cfg.Epsilon,
			RadiusScale: cfg.RadiusScale,
			RadiusMin:   unit.AngleFromSec(cfg.RadiusMin),
			RadiusMax:   unit.AngleFromSec(cfg.RadiusMax),
			Log:         log,
		}
		if cfg.Repeatable {
			ctrl.RunID = a.a.Desig
		}
		res, err := ctrl.Run(context.Background(), seedFromArc(cfg, a.a))
		if err != nil {
			a.rch <- fmt.Sprintf("%-12s  %v", a.a.Desig, err)
			continue
		}
		recordRun(res, time.Since(start))
		a.rch <- reportLine(res, opt)
	}
}

// seedFromArc builds the controller seed from an input arc.  Detections
// get per-site astrometric errors from the config, the digest2 obserr
// semantics: site override first, then the default.
func seedFromArc(cfg Config, a *observation.Arc) pcloop.Seed {
	dets := make([]pcloop.Det, len(a.Obs))
	for i, o := range a.Obs {
		dets[i] = pcloop.Det{
			ID:      fmt.Sprintf("%s.%02d", a.Desig, i+1),
			Obs:     o,
			Sigma:   cfg.obsErr(o.Meas().Qual),
			Dataset: "seed",
		}
	}
	return pcloop.Seed{Desig: a.Desig, Obs: dets}
}

func initLogger(level string) zerolog.Logger {
	lv, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lv = zerolog.WarnLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().
		Str("app", "precover").Logger().Level(lv)
}

type commandLine struct {
	fnConfig    string // -c
	fnIndex     string // -x
	fnOcd       string // -o
	fnObs       string // seed observations
	metricsAddr string // -metrics
	logLevel    string // -log
	opt         *outputOptions
}

func parseCommandLine() *commandLine {
	cl := &commandLine{opt: &outputOptions{}}
	dh := flag.Bool("h", false, "")
	dv := flag.Bool("v", false, "")
	noheadings := flag.Bool("noheadings", false, "")
	flag.BoolVar(&cl.opt.candidates, "cand", false, "")
	flag.StringVar(&cl.fnConfig, "c", "", "")
	flag.StringVar(&cl.fnIndex, "x", "precover.db", "")
	flag.StringVar(&cl.fnOcd, "o", "precover.obscodes", "")
	flag.StringVar(&cl.metricsAddr, "metrics", "", "")
	flag.StringVar(&cl.logLevel, "log", "warn", "")
	flag.Usage = func() {
		os.Stderr.WriteString(`
Usage: precover [options] <obsfile>    recover orbits seeded from file
       precover [options] -            recover orbits seeded from stdin
       precover -h                     display help
       precover -v                     display version and copyright

Options:
       -c <config-file>
       -x <detection-index>
       -o <obscode-file>
       -cand
       -noheadings
       -log <level>
       -metrics <listen-address>
`)
	}
	flag.Parse()
	cl.opt.headings = !*noheadings
	switch {
	case *dh:
		printHelp()
		os.Exit(0)
	case *dv:
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		os.Exit(0)
	case flag.NArg() != 1:
		flag.Usage()
		os.Exit(1)
	}
	cl.fnObs = flag.Arg(0)
	return cl
}

func readOcd(cl *commandLine) observation.ParallaxMap {
	ocdMap, readErr := mpcformat.ReadObscodeDatFile(cl.fnOcd)
	if readErr == nil {
		return ocdMap
	}
	// that didn't work.  try getting a fresh copy.
	if err := mpcformat.FetchObscodeDat(cl.fnOcd); err != nil {
		fmt.Fprintln(os.Stderr, readErr) // error from read attempt,
		exit.Log(err)                    // and error from download attempt
	}
	if ocdMap, readErr = mpcformat.ReadObscodeDatFile(cl.fnOcd); readErr != nil {
		exit.Log(readErr)
	}
	return ocdMap
}

func printHelp() {
	fmt.Println(`
Precover recovers asteroid orbits by iterative precovery and
differential correction.  Seed arcs are read as 80 column MPC-format
observations, at least two per object.  For each object the program
alternates a search of the historical detection index against the
current orbit's uncertainty region with a refit over the accepted
detections, until the associated set stabilizes.

Config file keys (TOML):
   threshold        acceptance gate, sigma units
   demote_factor    demotion boundary multiplier, must be > 1
   accept_equal     accept a candidate at exactly the threshold
   epsilon          convergence improvement floor
   max_iter         iteration budget
   max_rchi2        fit divergence guard
   radius_scale     search radius per uncertainty sigma
   radius_min       arc seconds
   radius_max       arc seconds
   min_mjd, max_mjd search window
   obserr           default astrometric error, arc seconds
   obserr_site      per-obscode overrides, e.g. F51 = 0.3
   datasets         source catalogs to search
   repeatable       deterministic run ids

Build the detection index with the mkindex command.

For full documentation:
   go doc github.com/soniakeys/precover`)
}
