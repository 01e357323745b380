// Public domain.

package pcprog

import (
	"fmt"
	"strings"

	"github.com/soniakeys/meeus/v3/julian"
	sexa "github.com/soniakeys/sexagesimal"

	"github.com/soniakeys/precover/internal/pcloop"
)

type outputOptions struct {
	headings   bool
	candidates bool // per-detection detail lines
}

func printHeadings(opt *outputOptions) {
	if opt.headings {
		fmt.Println(versionString)
		fmt.Println("Desig.        Term              Iter  Obs  Rej  RChi2")
	}
}

// reportLine formats the one-line summary for a finished run.
func reportLine(res *pcloop.Result, opt *outputOptions) string {
	a, rej, _ := counts(res)
	ol := fmt.Sprintf("%-12s  %-17s %4d %4d %4d %6.2f",
		res.Desig, res.Reason, res.Iterations(), a, rej, res.Final.RChi2)
	if !opt.candidates {
		return ol
	}
	var b strings.Builder
	b.WriteString(ol)
	for _, id := range res.AssociatedIDs() {
		st := res.Ledger[id]
		if st.FirstSeen == 0 {
			continue // seed observation, not a precovered one
		}
		b.WriteString("\n" + candLine("  + ", st))
	}
	for _, id := range res.RejectedIDs() {
		b.WriteString("\n" + candLine("  - ", res.Ledger[id]))
	}
	return b.String()
}

// candLine details one precovered or rejected detection: id, calendar
// date, position, normalized residual, deciding iteration.
func candLine(mark string, st pcloop.ObsState) string {
	m := st.Det.Obs.Meas()
	date := julian.JDToTime(m.MJD + 2400000.5).Format("2006-01-02")
	return fmt.Sprintf("%s%-16s %s  %v %v  %5.2fσ  iter %d",
		mark, st.Det.ID, date,
		sexa.FmtRA(m.RA), sexa.FmtAngle(m.Dec),
		st.LastResid, st.LastDecided)
}

func counts(res *pcloop.Result) (associated, rejected, untested int) {
	for _, st := range res.Ledger {
		switch st.Membership {
		case pcloop.Associated:
			associated++
		case pcloop.Rejected:
			rejected++
		default:
			untested++
		}
	}
	return
}
