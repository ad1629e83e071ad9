package reconcile

import (
	"fmt"
	"slices"
)

// Reasons reported by Guard.Evaluate.
const (
	ReasonApproved          = "approved"
	ReasonNoCandidates      = "no_candidates"
	ReasonIncompletePull    = "incomplete_pull"
	ReasonToleranceExceeded = "tolerance_exceeded"
)

// Guard decides whether records missing from a snapshot may be deleted.
type Guard struct {
	// Tolerance is the largest candidate set that is acted on.
	Tolerance int
}

// Decision is the outcome of a deletion guard evaluation.
type Decision struct {
	Candidates []string
	Tolerance  int
	Complete   bool
	Approved   bool
	Reason     string
}

// Blocked reports whether candidates existed but were withheld.
func (d Decision) Blocked() bool {
	return !d.Approved && d.Reason != ReasonNoCandidates
}

func (d Decision) String() string {
	switch d.Reason {
	case ReasonIncompletePull:
		return fmt.Sprintf("%d deletion candidates ignored: source pull was not complete", len(d.Candidates))
	case ReasonToleranceExceeded:
		return fmt.Sprintf("%d deletion candidates exceed tolerance %d", len(d.Candidates), d.Tolerance)
	case ReasonApproved:
		return fmt.Sprintf("%d deletion candidates approved", len(d.Candidates))
	default:
		return "no deletion candidates"
	}
}

// Evaluate computes local minus fresh and approves the result only when the
// pull is complete and the set is within tolerance.
func (g Guard) Evaluate(local, fresh []string, complete bool) Decision {
	seen := make(map[string]struct{}, len(fresh))
	for _, id := range fresh {
		seen[id] = struct{}{}
	}
	var candidates []string
	for _, id := range local {
		if _, ok := seen[id]; !ok {
			candidates = append(candidates, id)
		}
	}
	slices.Sort(candidates)
	candidates = slices.Compact(candidates)

	d := Decision{Candidates: candidates, Tolerance: g.Tolerance, Complete: complete}
	switch {
	case len(candidates) == 0:
		d.Reason = ReasonNoCandidates
	case !complete:
		d.Reason = ReasonIncompletePull
	case len(candidates) > g.Tolerance:
		d.Reason = ReasonToleranceExceeded
	default:
		d.Approved = true
		d.Reason = ReasonApproved
	}
	return d
}
