// Public domain.

// Package pcindex is the built-in precovery index: a single-table sqlite
// database of historical detections, queried by time window and filtered
// by angular separation from the predicted track.
package pcindex

import (
	"database/sql"
	"fmt"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/observation"
	"github.com/soniakeys/unit"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/soniakeys/precover/internal/pcfit"
	"github.com/soniakeys/precover/internal/pcloop"
)

const schema = `CREATE TABLE IF NOT EXISTS detections (
	id      TEXT PRIMARY KEY,
	mjd     REAL NOT NULL,
	ra      REAL NOT NULL,
	dec     REAL NOT NULL,
	sigma   REAL NOT NULL,
	obscode TEXT NOT NULL,
	dataset TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS detections_mjd ON detections(mjd);`

// Row is one stored detection.  RA and Dec are radians, sigma is the
// astrometric error in arc seconds.
type Row struct {
	ID      string
	MJD     float64
	RA, Dec float64
	Sigma   float64
	Obscode string
	Dataset string
}

// Index implements pcloop.SearchAdapter over a sqlite detection table.
type Index struct {
	db  *sql.DB
	ocd observation.ParallaxMap

	// Datasets, when non-nil, limits search results to the named source
	// catalogs.
	Datasets map[string]bool
}

// Create opens the database at path, creating it and its schema as
// needed.  Used by the index build side.
func Create(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create detections table: %w", err)
	}
	return &Index{db: db}, nil
}

// Open opens an existing index for searching.  ocd supplies site
// parallax constants for the detections returned; codes missing from the
// map yield detections without observer position, which is sufficient
// for association.
func Open(path string, ocd observation.ParallaxMap) (*Index, error) {
	x, err := Create(path)
	if err != nil {
		return nil, err
	}
	x.ocd = ocd
	return x, nil
}

func (x *Index) Close() error { return x.db.Close() }

// AddBatch inserts rows in one transaction.  Duplicate ids are an error;
// the index is append-only.
func (x *Index) AddBatch(rows []Row) error {
	tx, err := x.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	st, err := tx.Prepare(`INSERT INTO detections
		(id, mjd, ra, dec, sigma, obscode, dataset)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	for _, r := range rows {
		if _, err := st.Exec(r.ID, r.MJD, r.RA, r.Dec, r.Sigma, r.Obscode, r.Dataset); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Count reports the number of stored detections.
func (x *Index) Count() (int, error) {
	var n int
	err := x.db.QueryRow(`SELECT count(*) FROM detections`).Scan(&n)
	return n, err
}

// Search returns stored detections within the time window whose
// positions fall within radius of the estimate's predicted track, with
// sigma-normalized predicted residuals.  Query failures are reported as
// pcloop.ErrIndexUnavailable.
func (x *Index) Search(est pcloop.OrbitEst, w pcloop.TimeWindow, radius unit.Angle) ([]pcloop.Cand, error) {
	rows, err := x.db.Query(`SELECT id, mjd, ra, dec, sigma, obscode, dataset
		FROM detections WHERE mjd >= ? AND mjd <= ? ORDER BY mjd, id`,
		w.First, w.Last)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pcloop.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var cands []pcloop.Cand
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.MJD, &r.RA, &r.Dec, &r.Sigma, &r.Obscode, &r.Dataset); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", pcloop.ErrIndexUnavailable, err)
		}
		if x.Datasets != nil && !x.Datasets[r.Dataset] {
			continue
		}
		pred, ok := pcfit.Predict(est, r.MJD)
		if !ok {
			return nil, fmt.Errorf("%w: estimate not predictable by this index",
				pcloop.ErrIndexUnavailable)
		}
		pos := coord.Equa{RA: unit.RAFromRad(r.RA), Dec: unit.Angle(r.Dec)}
		sep := pcfit.Sep(pos, pred)
		if sep > radius {
			continue
		}
		sigma := unit.AngleFromSec(r.Sigma)
		if !(sigma > 0) {
			sigma = unit.AngleFromSec(1)
		}
		cands = append(cands, pcloop.Cand{
			Det: pcloop.Det{
				ID: r.ID,
				Obs: &observation.SiteObs{
					VMeas: observation.VMeas{
						MJD:  r.MJD,
						Equa: pos,
						Qual: r.Obscode,
					},
					Par: x.ocd[r.Obscode],
				},
				Sigma:   sigma,
				Dataset: r.Dataset,
			},
			Resid: sep.Rad() / sigma.Rad(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", pcloop.ErrIndexUnavailable, err)
	}
	return cands, nil
}
