package storage

import (
	"sort"

	"github.com/mcoot/matchsync/internal/model"
)

// SortUnits orders units by creation time, breaking ties by id
func SortUnits(units []*model.Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		if !units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].CreatedAt.Before(units[j].CreatedAt)
		}
		return units[i].ID < units[j].ID
	})
}
