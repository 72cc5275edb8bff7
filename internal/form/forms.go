package form

import (
	"net/url"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"winery/internal/core"
)

const (
	DefaultCategoryColor = "#3B82F6"
	DefaultLunchRate     = 25
	DefaultTastingRate   = 15
)

var visitTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type PersonForm struct {
	Name   string `json:"name"`
	Note   string `json:"note"`
	Active bool   `json:"active"`
}

func NewPersonForm() PersonForm {
	return PersonForm{Active: true}
}

func PersonFormFrom(p core.Person) PersonForm {
	return PersonForm{Name: p.Name, Note: p.Note, Active: p.Active}
}

func ParsePerson(v url.Values) (PersonForm, error) {
	r := newReader(v)
	f := PersonForm{
		Name:   r.text("name"),
		Note:   r.text("note"),
		Active: r.checkbox("active"),
	}
	return f, r.merge(f.Validate())
}

func (f *PersonForm) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&f.Note, validation.Length(0, 500)),
	)
}

func (f PersonForm) Person() core.Person {
	return core.Person{Name: f.Name, Note: f.Note, Active: f.Active}
}

type CategoryForm struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Active      bool   `json:"active"`
}

func NewCategoryForm() CategoryForm {
	return CategoryForm{Color: DefaultCategoryColor, Active: true}
}

func CategoryFormFrom(c core.Category) CategoryForm {
	color := c.Color
	if color == "" {
		color = DefaultCategoryColor
	}
	return CategoryForm{Name: c.Name, Description: c.Description, Color: color, Active: c.Active}
}

func ParseCategory(v url.Values) (CategoryForm, error) {
	r := newReader(v)
	f := CategoryForm{
		Name:        r.text("name"),
		Description: r.text("description"),
		Color:       r.text("color"),
		Active:      r.checkbox("active"),
	}
	return f, r.merge(f.Validate())
}

func (f *CategoryForm) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&f.Color, validation.Required, is.HexColor),
	)
}

func (f CategoryForm) Category() core.Category {
	return core.Category{Name: f.Name, Description: f.Description, Color: f.Color, Active: f.Active}
}

type EntryForm struct {
	Date        core.Date    `json:"date"`
	Description string       `json:"description"`
	PersonID    int64        `json:"personId"`
	CategoryID  int64        `json:"categoryId"`
	WorkHours   core.Decimal `json:"workHours"`
	AmountPaid  core.Decimal `json:"amountPaid"`
	AmountDue   core.Decimal `json:"amountDue"`
}

// NewEntryForm defaults the date to today and every amount to zero.
func NewEntryForm(now time.Time) EntryForm {
	return EntryForm{Date: core.DateOf(now)}
}

func EntryFormFrom(e core.Entry) EntryForm {
	return EntryForm{
		Date:        e.Date,
		Description: e.Description,
		PersonID:    e.PersonID,
		CategoryID:  e.CategoryID,
		WorkHours:   e.WorkHours,
		AmountPaid:  e.AmountPaid,
		AmountDue:   e.AmountDue,
	}
}

func ParseEntry(v url.Values) (EntryForm, error) {
	r := newReader(v)
	f := EntryForm{
		Date:        r.date("date"),
		Description: r.text("description"),
		PersonID:    r.id("personId"),
		CategoryID:  r.id("categoryId"),
		WorkHours:   r.decimal("workHours"),
		AmountPaid:  r.decimal("amountPaid"),
		AmountDue:   r.decimal("amountDue"),
	}
	return f, r.merge(f.Validate())
}

func (f *EntryForm) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Date, requiredDate),
		validation.Field(&f.Description, validation.Required, validation.Length(1, 500)),
		validation.Field(&f.PersonID, validation.Required),
		validation.Field(&f.CategoryID, validation.Required),
		validation.Field(&f.WorkHours, nonNegative),
		validation.Field(&f.AmountPaid, nonNegative),
		validation.Field(&f.AmountDue, nonNegative),
	)
}

// Total previews paid plus due.
func (f EntryForm) Total() core.Decimal {
	return f.AmountPaid.Add(f.AmountDue)
}

func (f EntryForm) Entry() core.Entry {
	return core.Entry{
		Date:        f.Date,
		Description: f.Description,
		PersonID:    f.PersonID,
		CategoryID:  f.CategoryID,
		WorkHours:   f.WorkHours,
		AmountPaid:  f.AmountPaid,
		AmountDue:   f.AmountDue,
	}
}

type EventForm struct {
	VisitDate           core.Date    `json:"visitDate"`
	VisitTime           string       `json:"visitTime"`
	AdultLunchGuests    int          `json:"adultLunchGuests"`
	AdultTastingGuests  int          `json:"adultTastingGuests"`
	ChildrenGuests      int          `json:"childrenGuests"`
	ExtraGuests         int          `json:"extraGuests"`
	HotDishVegetarian   int          `json:"hotDishVegetarian"`
	HotDishMeat         int          `json:"hotDishMeat"`
	Masterclass         bool         `json:"masterclass"`
	MealExtraInfo       string       `json:"mealExtraInfo"`
	Company             string       `json:"company"`
	ContactName         string       `json:"contactName"`
	ContactPhone        string       `json:"contactPhone"`
	SpecialPriceEnabled bool         `json:"specialPriceEnabled"`
	SpecialLunchPrice   core.Decimal `json:"specialLunchPrice"`
	LunchGroupSize      int          `json:"lunchGroupSize"`
	LunchRate           core.Decimal `json:"lunchRate"`
	SpecialTastingPrice core.Decimal `json:"specialTastingPrice"`
	TastingGroupSize    int          `json:"tastingGroupSize"`
	TastingRate         core.Decimal `json:"tastingRate"`
	AddedWinesCount     int          `json:"addedWinesCount"`
	AddedWinesValue     core.Decimal `json:"addedWinesValue"`
	ExtraChargeComment  string       `json:"extraChargeComment"`
	ExtraChargeAmount   core.Decimal `json:"extraChargeAmount"`
	InvoiceIssued       bool         `json:"invoiceIssued"`
}

// NewEventForm defaults the visit to now with standard lunch and tasting rates.
func NewEventForm(now time.Time) EventForm {
	return EventForm{
		VisitDate:   core.DateOf(now),
		VisitTime:   now.Format("15:04"),
		LunchRate:   core.DecimalFromInt(DefaultLunchRate),
		TastingRate: core.DecimalFromInt(DefaultTastingRate),
	}
}

func EventFormFrom(e core.Event) EventForm {
	return EventForm{
		VisitDate:           e.VisitDate,
		VisitTime:           e.VisitTime,
		AdultLunchGuests:    e.AdultLunchGuests,
		AdultTastingGuests:  e.AdultTastingGuests,
		ChildrenGuests:      e.ChildrenGuests,
		ExtraGuests:         e.ExtraGuests,
		HotDishVegetarian:   e.HotDishVegetarian,
		HotDishMeat:         e.HotDishMeat,
		Masterclass:         e.Masterclass,
		MealExtraInfo:       e.MealExtraInfo,
		Company:             e.Company,
		ContactName:         e.ContactName,
		ContactPhone:        e.ContactPhone,
		SpecialPriceEnabled: e.SpecialPriceEnabled,
		SpecialLunchPrice:   e.SpecialLunchPrice,
		LunchGroupSize:      e.LunchGroupSize,
		LunchRate:           e.LunchRate,
		SpecialTastingPrice: e.SpecialTastingPrice,
		TastingGroupSize:    e.TastingGroupSize,
		TastingRate:         e.TastingRate,
		AddedWinesCount:     e.AddedWinesCount,
		AddedWinesValue:     e.AddedWinesValue,
		ExtraChargeComment:  e.ExtraChargeComment,
		ExtraChargeAmount:   e.ExtraChargeAmount,
		InvoiceIssued:       e.InvoiceIssued,
	}
}

func ParseEvent(v url.Values) (EventForm, error) {
	r := newReader(v)
	f := EventForm{
		VisitDate:           r.date("visitDate"),
		VisitTime:           r.text("visitTime"),
		AdultLunchGuests:    r.count("adultLunchGuests"),
		AdultTastingGuests:  r.count("adultTastingGuests"),
		ChildrenGuests:      r.count("childrenGuests"),
		ExtraGuests:         r.count("extraGuests"),
		HotDishVegetarian:   r.count("hotDishVegetarian"),
		HotDishMeat:         r.count("hotDishMeat"),
		Masterclass:         r.checkbox("masterclass"),
		MealExtraInfo:       r.text("mealExtraInfo"),
		Company:             r.text("company"),
		ContactName:         r.text("contactName"),
		ContactPhone:        r.text("contactPhone"),
		SpecialPriceEnabled: r.checkbox("specialPriceEnabled"),
		SpecialLunchPrice:   r.decimal("specialLunchPrice"),
		LunchGroupSize:      r.count("lunchGroupSize"),
		LunchRate:           r.decimal("lunchRate"),
		SpecialTastingPrice: r.decimal("specialTastingPrice"),
		TastingGroupSize:    r.count("tastingGroupSize"),
		TastingRate:         r.decimal("tastingRate"),
		AddedWinesCount:     r.count("addedWinesCount"),
		AddedWinesValue:     r.decimal("addedWinesValue"),
		ExtraChargeComment:  r.text("extraChargeComment"),
		ExtraChargeAmount:   r.decimal("extraChargeAmount"),
		InvoiceIssued:       r.checkbox("invoiceIssued"),
	}
	return f, r.merge(f.Validate())
}

func (f *EventForm) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.VisitDate, requiredDate),
		validation.Field(&f.VisitTime, validation.Required, validation.Match(visitTimePattern)),
		validation.Field(&f.ContactName, validation.Required, validation.Length(1, 200)),
		validation.Field(&f.AdultLunchGuests, nonNegative),
		validation.Field(&f.AdultTastingGuests, nonNegative),
		validation.Field(&f.ChildrenGuests, nonNegative),
		validation.Field(&f.ExtraGuests, nonNegative),
		validation.Field(&f.HotDishVegetarian, nonNegative),
		validation.Field(&f.HotDishMeat, nonNegative),
		validation.Field(&f.LunchRate, nonNegative),
		validation.Field(&f.TastingRate, nonNegative),
		validation.Field(&f.SpecialLunchPrice, nonNegative),
		validation.Field(&f.SpecialTastingPrice, nonNegative),
		validation.Field(&f.AddedWinesValue, nonNegative),
	)
}

func (f EventForm) Event() core.Event {
	return core.Event{
		VisitDate:           f.VisitDate,
		VisitTime:           f.VisitTime,
		AdultLunchGuests:    f.AdultLunchGuests,
		AdultTastingGuests:  f.AdultTastingGuests,
		ChildrenGuests:      f.ChildrenGuests,
		ExtraGuests:         f.ExtraGuests,
		HotDishVegetarian:   f.HotDishVegetarian,
		HotDishMeat:         f.HotDishMeat,
		Masterclass:         f.Masterclass,
		MealExtraInfo:       f.MealExtraInfo,
		Company:             f.Company,
		ContactName:         f.ContactName,
		ContactPhone:        f.ContactPhone,
		SpecialPriceEnabled: f.SpecialPriceEnabled,
		SpecialLunchPrice:   f.SpecialLunchPrice,
		LunchGroupSize:      f.LunchGroupSize,
		LunchRate:           f.LunchRate,
		SpecialTastingPrice: f.SpecialTastingPrice,
		TastingGroupSize:    f.TastingGroupSize,
		TastingRate:         f.TastingRate,
		AddedWinesCount:     f.AddedWinesCount,
		AddedWinesValue:     f.AddedWinesValue,
		ExtraChargeComment:  f.ExtraChargeComment,
		ExtraChargeAmount:   f.ExtraChargeAmount,
		InvoiceIssued:       f.InvoiceIssued,
	}
}

// Preview is the event with the derived totals filled in, for display while
// editing. The saved totals always come back from the API.
func (f EventForm) Preview() core.Event {
	return f.Event().PreviewTotals()
}
