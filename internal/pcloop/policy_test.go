// Public domain.

package pcloop_test

import (
	"testing"

	"github.com/soniakeys/precover/internal/pcloop"
)

func TestPolicyValidate(t *testing.T) {
	for _, tc := range []struct {
		p  pcloop.Policy
		ok bool
	}{
		{pcloop.Policy{Thresh: 2, DemoteFactor: 1.5}, true},
		{pcloop.Policy{Thresh: 0, DemoteFactor: 1.5}, false},
		{pcloop.Policy{Thresh: -1, DemoteFactor: 1.5}, false},
		{pcloop.Policy{Thresh: 2, DemoteFactor: 1}, false},
		{pcloop.Policy{Thresh: 2, DemoteFactor: .5}, false},
	} {
		if err := tc.p.Validate(); (err == nil) != tc.ok {
			t.Errorf("Validate(%+v) = %v", tc.p, err)
		}
	}
}

func TestPolicyAccept(t *testing.T) {
	p := pcloop.Policy{Thresh: 2, DemoteFactor: 1.5}
	if !p.Accept(1.99) {
		t.Fatal("residual below threshold rejected")
	}
	if p.Accept(2) {
		t.Fatal("residual at exact threshold accepted without AcceptEqual")
	}
	if p.Accept(2.01) {
		t.Fatal("residual above threshold accepted")
	}
	p.AcceptEqual = true
	if !p.Accept(2) {
		t.Fatal("AcceptEqual did not accept the exact threshold")
	}
	if p.Accept(2.01) {
		t.Fatal("AcceptEqual accepted above the threshold")
	}
}

func TestPolicyDemote(t *testing.T) {
	p := pcloop.Policy{Thresh: 2, DemoteFactor: 1.5}
	// boundary is 3: at the boundary stays, beyond demotes
	if p.Demote(3) {
		t.Fatal("residual at demotion boundary demoted")
	}
	if !p.Demote(3.01) {
		t.Fatal("residual beyond demotion boundary kept")
	}
	// a residual between accept and demote keeps an associated
	// detection but would not admit a new one
	if p.Accept(2.5) || p.Demote(2.5) {
		t.Fatal("hysteresis band misclassified")
	}
}

func TestPolicyPartition(t *testing.T) {
	p := pcloop.Policy{Thresh: 2, DemoteFactor: 1.5}
	cands := []pcloop.Cand{
		{Det: det("a", 100, 1, .5), Resid: .5},
		{Det: det("b", 101, 1, .5), Resid: 3},
		{Det: det("c", 102, 1, .5), Resid: 1.2},
	}
	acc, rej := p.Partition(cands)
	if len(acc) != 2 || acc[0].ID != "a" || acc[1].ID != "c" {
		t.Fatalf("accepted: %v", ids(acc))
	}
	if len(rej) != 1 || rej[0].ID != "b" {
		t.Fatalf("rejected: %v", ids(rej))
	}
}

func ids(cands []pcloop.Cand) []string {
	s := make([]string, len(cands))
	for i, c := range cands {
		s[i] = c.ID
	}
	return s
}
