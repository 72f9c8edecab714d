// Package reconcile merges the remote store's answer with the session's
// local pending queue into the single ordered list a view renders.
package reconcile

import (
	"strings"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

// Key is the equivalence key of a task: its title, case-folded with runs of
// whitespace collapsed, and its calendar day. It is the only identity a
// pending task has before the remote store assigns one, so two distinct
// tasks with the same title on the same day are treated as one.
func Key(t model.Task) string {
	title := strings.ToLower(strings.Join(strings.Fields(t.Title), " "))
	return title + "\x00" + t.Day()
}

// OwnerKey scopes Key to the task's owner. A pending task is only ever
// covered by a record its own owner holds; a same-titled task someone else
// assigned on that day is a different task.
func OwnerKey(t model.Task) string {
	return t.OwnerID + "\x00" + Key(t)
}

// Merge returns remote items in server order followed by the local items no
// remote item already covers, in insertion order. A local item is covered
// when a remote item has the same id, or the same owner and Key; covered items are
// returned in confirmed so the caller can drop them from the queue.
//
// Merge is idempotent: merging the same inputs twice gives the same list.
func Merge(remote, local []model.Task) (merged []model.Task, confirmed []string) {
	ids := make(map[string]struct{}, len(remote))
	keys := make(map[string]struct{}, len(remote))
	merged = make([]model.Task, 0, len(remote)+len(local))
	for _, t := range remote {
		t.Pending = false
		merged = append(merged, t)
		if t.ID != "" {
			ids[t.ID] = struct{}{}
		}
		keys[OwnerKey(t)] = struct{}{}
	}

	for _, t := range local {
		_, sameID := ids[t.ID]
		_, sameKey := keys[OwnerKey(t)]
		if (t.ID != "" && sameID) || sameKey {
			confirmed = append(confirmed, t.ID)
			continue
		}
		t.Pending = true
		merged = append(merged, t)
	}
	return merged, confirmed
}
