// Package audit turns server audit records into the per-record history shown
// in the audit trail dialog.
package audit

import (
	"context"
	"fmt"

	"winery/internal/core"
	"winery/internal/listing"
	"winery/internal/winery"
)

// TrailRequest is the fixed request for one record's history: the newest 100
// changes.
var TrailRequest = listing.Request{
	Page:  0,
	Size:  100,
	Sort:  listing.Sort{Field: "changedAt", Desc: true},
	Style: listing.SortSplit,
}

// Detail is what changed in one audit record. It is one of Insert, Update or
// Delete.
type Detail interface {
	Action() core.AuditAction
}

// Insert lists the fields a new record was created with.
type Insert struct {
	Fields []Value
}

// Update lists the fields whose value changed.
type Update struct {
	Changes []Change
}

type Delete struct{}

func (Insert) Action() core.AuditAction { return core.ActionInsert }
func (Update) Action() core.AuditAction { return core.ActionUpdate }
func (Delete) Action() core.AuditAction { return core.ActionDelete }

// Value is a field and its formatted value.
type Value struct {
	Field string
	Value string
}

// Change is a field rendered as "field: old → new".
type Change struct {
	Field string
	Old   string
	New   string
}

func (c Change) String() string {
	return c.Field + ": " + c.Old + " → " + c.New
}

// Item pairs an audit record with its decoded detail.
type Item struct {
	Log    core.AuditLog
	Detail Detail
}

// Describe decodes the snapshots of l into its detail variant.
func Describe(l core.AuditLog) (Detail, error) {
	switch l.Action {
	case core.ActionInsert:
		fields, err := ParseFieldMap(l.NewValues)
		if err != nil {
			return nil, fmt.Errorf("audit %d new values: %w", l.ID, err)
		}
		return insertOf(fields), nil
	case core.ActionUpdate:
		oldFields, err := ParseFieldMap(l.OldValues)
		if err != nil {
			return nil, fmt.Errorf("audit %d old values: %w", l.ID, err)
		}
		newFields, err := ParseFieldMap(l.NewValues)
		if err != nil {
			return nil, fmt.Errorf("audit %d new values: %w", l.ID, err)
		}
		return Diff(oldFields, newFields), nil
	case core.ActionDelete:
		return Delete{}, nil
	default:
		return nil, fmt.Errorf("audit %d: unknown action %q", l.ID, l.Action)
	}
}

func insertOf(fields FieldMap) Insert {
	var out Insert
	for _, f := range fields {
		if isBlank(f.Value) {
			continue
		}
		out.Fields = append(out.Fields, Value{Field: f.Name, Value: FormatValue(f.Value)})
	}
	return out
}

// Diff lists changed keys in the order of newValues, followed by keys that
// only exist in oldValues.
func Diff(oldValues, newValues FieldMap) Update {
	var out Update
	for _, f := range newValues {
		old, _ := oldValues.Get(f.Name)
		if sameValue(old, f.Value) {
			continue
		}
		out.Changes = append(out.Changes, Change{Field: f.Name, Old: FormatValue(old), New: FormatValue(f.Value)})
	}
	for _, f := range oldValues {
		if _, ok := newValues.Get(f.Name); ok || isNull(f.Value) {
			continue
		}
		out.Changes = append(out.Changes, Change{Field: f.Name, Old: FormatValue(f.Value), New: "null"})
	}
	return out
}

// Trail fetches and decodes the history of one record, newest first. A
// record whose snapshots cannot be decoded is still listed, with an empty
// detail of its action.
func Trail(ctx context.Context, api winery.AuditAPI, tableName string, recordID int64) ([]Item, error) {
	page, err := api.EntityAudit(ctx, tableName, recordID, TrailRequest)
	if err != nil {
		return nil, fmt.Errorf("audit trail %s/%d: %w", tableName, recordID, err)
	}

	items := make([]Item, 0, len(page.Content))
	for _, l := range page.Content {
		d, err := Describe(l)
		if err != nil {
			d = fallback(l.Action)
		}
		items = append(items, Item{Log: l, Detail: d})
	}
	return items, nil
}

func fallback(a core.AuditAction) Detail {
	switch a {
	case core.ActionInsert:
		return Insert{}
	case core.ActionUpdate:
		return Update{}
	default:
		return Delete{}
	}
}
