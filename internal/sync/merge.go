package sync

import (
	"slices"
	"time"

	"github.com/matheus3301/nestsync/internal/model"
)

// pin remembers the local timestamp of a message this client sent so its
// position does not jump when the server clock disagrees.
type pin struct {
	createdAt   time.Time
	confirmedAt time.Time
}

// mergeMessages combines the server page with local state. The server page is
// authoritative except that:
//   - local sending/failed entries are kept;
//   - confirmed sends missing from a page fetched before they were confirmed
//     are kept;
//   - pinned timestamps replace the server's;
//   - a message read locally stays read.
//
// The result is sorted by CreatedAt; ties keep their relative order.
func mergeMessages(local, server []model.Message, pinned map[string]pin, fetchStart time.Time) []model.Message {
	readLocally := make(map[string]bool)
	for _, m := range local {
		if m.IsRead {
			readLocally[m.ID] = true
		}
	}

	out := make([]model.Message, 0, len(server)+len(local))
	seen := make(map[string]bool, len(server))
	for _, m := range server {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		m.Status = model.StatusSent
		if p, ok := pinned[m.ID]; ok {
			m.CreatedAt = p.createdAt
		}
		if readLocally[m.ID] {
			m.IsRead = true
		}
		out = append(out, m)
	}

	for _, m := range local {
		if seen[m.ID] {
			continue
		}
		if m.Local() {
			out = append(out, m)
			continue
		}
		if p, ok := pinned[m.ID]; ok && !p.confirmedAt.Before(fetchStart) {
			out = append(out, m)
		}
	}

	slices.SortStableFunc(out, byCreatedAt)
	return out
}

func byCreatedAt(a, b model.Message) int {
	return a.CreatedAt.Compare(b.CreatedAt)
}

func indexOf(msgs []model.Message, id string) int {
	return slices.IndexFunc(msgs, func(m model.Message) bool { return m.ID == id })
}
