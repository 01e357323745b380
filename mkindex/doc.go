/*
Command mkindex builds the detection index used by precover.

The index is a SQLite database with one row per historical detection:
id, time (MJD), sky position, astrometric error, observatory code, and
source dataset name.  Two input modes are supported.

MPC observations:

  mkindex -x survey.db -dataset atlas detections.obs

reads 80 column MPC-format observations and appends every parsed
detection to the index under the given dataset name.  The obscode file
is read (or fetched) the same way precover reads it.

Synthetic tracks:

  mkindex -x test.db -synth 50 -seed 3

generates test tracks with jittered positions, useful for exercising
precover without survey data.  A constant -seed makes the output
repeatable.

Public domain.
*/
package main
