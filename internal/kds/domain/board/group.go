package board

import "kitchen-display/internal/kds/domain/models"

type groupKey struct {
	menuItemID string
	mods       string
	status     models.Status
	prep       bool
	early      bool
}

// groupItems merges lines with the same menu item, modifiers and status,
// summing quantities. First occurrence keeps its position.
func groupItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	index := make(map[groupKey]int, len(items))

	for _, it := range items {
		k := groupKey{
			menuItemID: it.MenuItemID,
			mods:       it.modsKey,
			status:     it.Status,
			prep:       it.PrepRequired,
			early:      it.IsEarlyDelivered,
		}
		if it.MenuItemID == "" {
			k.menuItemID = "item:" + it.ID
		}

		if i, ok := index[k]; ok {
			out[i].Quantity += it.Quantity
			out[i].IDs = append(out[i].IDs, it.ID)
			continue
		}
		index[k] = len(out)
		out = append(out, it)
	}
	return out
}
