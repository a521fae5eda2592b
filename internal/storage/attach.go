package storage

import "github.com/mcoot/matchsync/internal/model"

// CheckAttachment validates row's attachment against the other units of its
// match before row is written. Backends call it under the same lock or
// transaction as the write, so two crossing attaches cannot both pass.
// An unchanged attachment is always accepted; a knocked out unit cannot
// change its attachment at all.
func CheckAttachment(units []*model.Unit, row *model.Unit) error {
	var prev *model.Unit
	merged := make([]*model.Unit, 0, len(units)+1)
	for _, u := range units {
		if u.ID == row.ID {
			prev = u
			continue
		}
		merged = append(merged, u)
	}
	if prev != nil && sameAttachment(prev, row) {
		return nil
	}
	if prev != nil && row.IsKO {
		return model.ErrUnitKnockedOut
	}
	if !row.IsAttached() {
		return nil
	}
	merged = append(merged, row)
	return model.BuildAttachmentGraph(merged).ValidateTarget(row.ID, *row.AttachedTo)
}

func sameAttachment(a, b *model.Unit) bool {
	if a.IsAttached() != b.IsAttached() {
		return false
	}
	return !a.IsAttached() || *a.AttachedTo == *b.AttachedTo
}
