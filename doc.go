/*
Command precover recovers asteroid orbits by iterative precovery and
differential correction.

Contents

Version 0.1

  Program overview
  Command line usage
  File formats
  Algorithm outline

Program overview

Input is a file of 80 column MPC-format observations, with at least two
observations per object, and a detection index built by the companion
command mkindex.  For each object, the program fits an orbit to the seed
arc, searches the index for historical detections consistent with the
orbit's current uncertainty region, folds accepted detections back into
the fit, and repeats until the associated set stabilizes.  Output is one
line per object reporting the termination state, iteration count,
associated and rejected detection counts, and final fit quality; the
-cand option adds per-detection lines for everything precovered or
rejected along the way.

The MPC observation format is documented at
http://www.minorplanetcenter.net/iau/info/OpticalObs.html.

Sample run:

  precover -x survey.db fmo.obs

  precover version 0.1 Go source.
  Desig.        Term              Iter  Obs  Rej  RChi2
  NE00030       CONVERGED            3    9    1   1.12
  NE00199       CONVERGED            2    3    0   0.87
  NE00269       EXHAUSTED           10    6    4   2.31

Command line usage

Invoking the program without command line arguments (or with invalid
arguments) shows this usage prompt.

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

File formats

Seed observations, whether supplied in a file or through stdin, should
contain observations in the MPC 80 column observation format and nothing
else, sorted first by designation and then by time of observation, with
at least two observations of each object.

The obscode file is a text file of observatory codes in the standard MPC
format.  If the file is missing, precover downloads a copy from the
Minor Planet Center, the same as digest2 does.

The detection index is a SQLite database of historical detections
created by mkindex.  See,

  go doc github.com/soniakeys/precover/mkindex

The optional configuration file is TOML.  Keys and defaults are listed
by precover -h.  The obserr and obserr_site keys carry the digest2
meaning: an assumed astrometric error in arc seconds, per observatory
code, falling back on a file-wide default.

Algorithm outline

1.  For each object, an initial great-circle fit over the seed arc
produces an orbit estimate with per-observation residuals and an
uncertainty.

2.  The detection index is searched over the configured time window
within a radius derived from the estimate's uncertainty.  The radius
never grows from one pass to the next once a fit has succeeded.

3.  Candidates with predicted residuals inside the acceptance threshold
are associated; the rest are rejected, and every decision is recorded in
a per-object ledger with the iteration that made it.  A rejected
detection may be readmitted in a later pass if its residual against the
improved orbit clears the threshold; such flips are always logged.

4.  The orbit is refit over the associated set.  Associated detections
whose post-fit residuals exceed the demotion boundary (threshold times
demote_factor) are demoted back out.

5.  The loop converges when a pass changes no memberships and improves
the fit quality by less than epsilon.  It otherwise ends when the
iteration budget is exhausted, when the fit diverges, or when the index
becomes unreachable; in the last two cases the last successful orbit is
reported rather than the run failing outright.

-------------
Public domain.
*/
package main
