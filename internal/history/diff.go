package history

import "strings"

// DiffFields lists the fields that differ between two snapshots, in a fixed order.
func DiffFields(from, to Snapshot) []FieldChange {
	pairs := []FieldChange{
		{Field: "title", Before: from.Title, After: to.Title},
		{Field: "body", Before: from.Body, After: to.Body},
		{Field: "category", Before: string(from.Category), After: string(to.Category)},
		{Field: "keywords", Before: strings.Join(from.Keywords, ", "), After: strings.Join(to.Keywords, ", ")},
	}
	result := make([]FieldChange, 0, len(pairs))
	for _, item := range pairs {
		if item.Before == item.After {
			continue
		}
		result = append(result, item)
	}
	return result
}

func HasChanges(from, to Snapshot) bool {
	return len(DiffFields(from, to)) > 0
}
