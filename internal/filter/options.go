package filter

import (
	"slices"
	"strconv"

	"winery/internal/core"
)

// Option is one entry of a multi-select dropdown.
type Option struct {
	ID     int64
	Name   string
	Active bool
}

func PersonOptions(persons []core.Person) []Option {
	out := make([]Option, 0, len(persons))
	for _, p := range persons {
		out = append(out, Option{ID: p.ID, Name: p.Name, Active: p.Active})
	}
	return out
}

func CategoryOptions(categories []core.Category) []Option {
	out := make([]Option, 0, len(categories))
	for _, c := range categories {
		out = append(out, Option{ID: c.ID, Name: c.Name, Active: c.Active})
	}
	return out
}

// SelectedNames resolves selected ids to option names, in selection order.
// Ids missing from options are rendered as "#<id>".
func SelectedNames(ids []int64, options []Option) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		i := slices.IndexFunc(options, func(o Option) bool { return o.ID == id })
		if i < 0 {
			names = append(names, "#"+strconv.FormatInt(id, 10))
			continue
		}
		names = append(names, options[i].Name)
	}
	return names
}

// IsSelected is a template helper for multi-select inputs.
func IsSelected(ids []int64, id int64) bool {
	return slices.Contains(ids, id)
}
