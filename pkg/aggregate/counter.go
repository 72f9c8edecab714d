// Package aggregate derives the view-selector counts from a merged task set.
package aggregate

import (
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/visibility"
)

// Counts is recomputed from scratch on every change; it is never patched.
type Counts struct {
	// Views holds one entry per view the actor may open. Views the actor may
	// not open are absent, not zero.
	Views map[model.ViewLevel]int `json:"views"`
	// Members counts individual-view tasks per visible roster member.
	Members map[string]int `json:"members,omitempty"`
}

// Compute counts tasks for every permitted view and every visible member.
// Tasks are deduplicated by id so an item present in several views' results
// is counted once per view.
func Compute(actor model.Actor, roster model.Roster, tasks []model.Task) Counts {
	tasks = uniqueByID(tasks)
	counts := Counts{Views: make(map[model.ViewLevel]int)}

	for _, view := range visibility.Permitted(actor) {
		sel, err := visibility.Resolve(actor, view, "", roster)
		if err != nil {
			// An actor without a team cannot open the team view at all.
			continue
		}
		n := 0
		for _, t := range tasks {
			if sel.Match(t) {
				n++
			}
		}
		counts.Views[view] = n
	}

	if !actor.IsManager() {
		return counts
	}
	counts.Members = make(map[string]int)
	members := visibility.VisibleMembers(actor, roster)
	for _, m := range members {
		counts.Members[m.ID] = 0
	}
	for _, m := range members {
		sel, err := visibility.Resolve(actor, model.ViewIndividual, m.ID, roster)
		if err != nil {
			continue
		}
		for _, t := range tasks {
			if sel.Match(t) {
				counts.Members[m.ID]++
			}
		}
	}
	return counts
}

// MemberTotal sums the per-member counts.
func (c Counts) MemberTotal() int {
	total := 0
	for _, n := range c.Members {
		total += n
	}
	return total
}

func uniqueByID(tasks []model.Task) []model.Task {
	seen := make(map[string]struct{}, len(tasks))
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != "" {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
		}
		out = append(out, t)
	}
	return out
}
