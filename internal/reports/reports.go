// Package reports aggregates entry lists into the per-period statistics shown
// on the reports screen.
package reports

import (
	"cmp"
	"slices"
	"strconv"

	"winery/internal/core"
)

// EntryLimit is the page size used to fetch the entries of a report period.
const EntryLimit = 1000

// Stat is one row of a breakdown table.
type Stat struct {
	ID      int64
	Name    string
	Entries int
	Hours   core.Decimal
	Paid    core.Decimal
	Due     core.Decimal
}

// Cost is paid plus due.
func (s Stat) Cost() core.Decimal { return s.Paid.Add(s.Due) }

type Report struct {
	Entries       int
	TotalHours    core.Decimal
	TotalPaid     core.Decimal
	TotalDue      core.Decimal
	UniquePersons int
	ByPerson      []Stat
	ByCategory    []Stat
	// Truncated is set when the period holds more entries than were fetched.
	Truncated bool
}

func (r Report) TotalCost() core.Decimal { return r.TotalPaid.Add(r.TotalDue) }

// Share is the percentage of the total cost a stat represents, for bar widths.
func (r Report) Share(s Stat) float64 {
	total := r.TotalCost()
	if total.IsZero() {
		return 0
	}
	return s.Cost().Float() / total.Float() * 100
}

// Aggregate computes totals and per-person and per-category breakdowns,
// each sorted by cost descending.
func Aggregate(entries []core.Entry) Report {
	r := Report{Entries: len(entries)}
	persons := map[int64]*Stat{}
	categories := map[int64]*Stat{}

	for _, e := range entries {
		r.TotalHours = r.TotalHours.Add(e.WorkHours)
		r.TotalPaid = r.TotalPaid.Add(e.AmountPaid)
		r.TotalDue = r.TotalDue.Add(e.AmountDue)
		add(persons, e.PersonID, label(e.PersonName, e.PersonID), e)
		add(categories, e.CategoryID, label(e.CategoryName, e.CategoryID), e)
	}

	r.UniquePersons = len(persons)
	r.ByPerson = sorted(persons)
	r.ByCategory = sorted(categories)
	return r
}

func add(into map[int64]*Stat, id int64, name string, e core.Entry) {
	s, ok := into[id]
	if !ok {
		s = &Stat{ID: id, Name: name}
		into[id] = s
	}
	s.Entries++
	s.Hours = s.Hours.Add(e.WorkHours)
	s.Paid = s.Paid.Add(e.AmountPaid)
	s.Due = s.Due.Add(e.AmountDue)
}

func sorted(m map[int64]*Stat) []Stat {
	out := make([]Stat, 0, len(m))
	for _, s := range m {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b Stat) int {
		if c := cmp.Compare(b.Cost(), a.Cost()); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

func label(name string, id int64) string {
	if name != "" {
		return name
	}
	return "#" + strconv.FormatInt(id, 10)
}
