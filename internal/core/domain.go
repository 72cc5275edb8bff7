package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

const (
	ActionInsert AuditAction = "INSERT"
	ActionUpdate AuditAction = "UPDATE"
	ActionDelete AuditAction = "DELETE"
)

const (
	LevelError LogLevel = "ERROR"
	LevelWarn  LogLevel = "WARN"
	LevelInfo  LogLevel = "INFO"
	LevelDebug LogLevel = "DEBUG"
	LevelTrace LogLevel = "TRACE"
)

// Resource names as used in API paths and audit table names.
const (
	ResourcePersons    = "persons"
	ResourceCategories = "categories"
	ResourceEntries    = "entries"
	ResourceEvents     = "events"
	ResourceUsers      = "users"
)

type (
	Role        string
	AuditAction string
	LogLevel    string

	Person struct {
		ID        int64     `json:"id,omitempty"`
		Name      string    `json:"name"`
		Note      string    `json:"note,omitempty"`
		Active    bool      `json:"active"`
		CreatedAt Timestamp `json:"createdAt"`
		UpdatedAt Timestamp `json:"updatedAt"`
	}

	Category struct {
		ID          int64     `json:"id,omitempty"`
		Name        string    `json:"name"`
		Description string    `json:"description,omitempty"`
		Color       string    `json:"color,omitempty"`
		Active      bool      `json:"active"`
		CreatedAt   Timestamp `json:"createdAt"`
		UpdatedAt   Timestamp `json:"updatedAt"`
	}

	Entry struct {
		ID           int64     `json:"id,omitempty"`
		Date         Date      `json:"date"`
		Description  string    `json:"description"`
		PersonID     int64     `json:"personId"`
		PersonName   string    `json:"personName,omitempty"`
		CategoryID   int64     `json:"categoryId"`
		CategoryName string    `json:"categoryName,omitempty"`
		WorkHours    Decimal   `json:"workHours"`
		AmountPaid   Decimal   `json:"amountPaid"`
		AmountDue    Decimal   `json:"amountDue"`
		CreatedAt    Timestamp `json:"createdAt"`
		UpdatedAt    Timestamp `json:"updatedAt"`
	}

	Event struct {
		ID                   int64     `json:"id,omitempty"`
		CreatedTimestamp     Timestamp `json:"createdTimestamp"`
		VisitDate            Date      `json:"visitDate"`
		VisitTime            string    `json:"visitTime"`
		AdultLunchGuests     int       `json:"adultLunchGuests"`
		AdultTastingGuests   int       `json:"adultTastingGuests"`
		ChildrenGuests       int       `json:"childrenGuests"`
		ExtraGuests          int       `json:"extraGuests"`
		HotDishVegetarian    int       `json:"hotDishVegetarian"`
		HotDishMeat          int       `json:"hotDishMeat"`
		Masterclass          bool      `json:"masterclass"`
		MealExtraInfo        string    `json:"mealExtraInfo,omitempty"`
		Company              string    `json:"company,omitempty"`
		ContactName          string    `json:"contactName"`
		ContactPhone         string    `json:"contactPhone,omitempty"`
		SpecialPriceEnabled  bool      `json:"specialPriceEnabled"`
		SpecialLunchPrice    Decimal   `json:"specialLunchPrice"`
		LunchGroupSize       int       `json:"lunchGroupSize"`
		LunchRate            Decimal   `json:"lunchRate"`
		LunchTotal           Decimal   `json:"lunchTotal"`
		SpecialTastingPrice  Decimal   `json:"specialTastingPrice"`
		TastingGroupSize     int       `json:"tastingGroupSize"`
		TastingRate          Decimal   `json:"tastingRate"`
		TastingTotal         Decimal   `json:"tastingTotal"`
		LunchAndTastingTotal Decimal   `json:"lunchAndTastingTotal"`
		AddedWinesCount      int       `json:"addedWinesCount"`
		AddedWinesValue      Decimal   `json:"addedWinesValue"`
		ExtraChargeComment   string    `json:"extraChargeComment,omitempty"`
		ExtraChargeAmount    Decimal   `json:"extraChargeAmount"`
		GrandTotal           Decimal   `json:"grandTotal"`
		InvoiceIssued        bool      `json:"invoiceIssued"`
	}

	User struct {
		ID        int64     `json:"id,omitempty"`
		Username  string    `json:"username"`
		Password  string    `json:"password,omitempty"`
		Role      Role      `json:"role"`
		Active    bool      `json:"active"`
		CreatedAt Timestamp `json:"createdAt"`
		UpdatedAt Timestamp `json:"updatedAt"`
	}

	AuditLog struct {
		ID        int64           `json:"id"`
		TableName string          `json:"tableName"`
		RecordID  int64           `json:"recordId"`
		Action    AuditAction     `json:"action"`
		OldValues json.RawMessage `json:"oldValues,omitempty"`
		NewValues json.RawMessage `json:"newValues,omitempty"`
		ChangedBy string          `json:"changedBy"`
		ChangedAt Timestamp       `json:"changedAt"`
		IPAddress string          `json:"ipAddress,omitempty"`
		UserAgent string          `json:"userAgent,omitempty"`
	}

	LogEntry struct {
		ID        int64     `json:"id"`
		Timestamp Timestamp `json:"timestamp"`
		Level     LogLevel  `json:"level"`
		Logger    string    `json:"logger"`
		Message   string    `json:"message"`
		Thread    string    `json:"thread"`
	}

	// LogPage is the /logs response: the newest entries up to the limit.
	LogPage struct {
		Logs        []LogEntry `json:"logs"`
		TotalCount  int64      `json:"totalCount"`
		LastUpdated Timestamp  `json:"lastUpdated"`
	}

	LogStats struct {
		LevelCounts  map[string]int64 `json:"levelCounts"`
		TotalLogs    int64            `json:"totalLogs"`
		LastHour     int64            `json:"lastHour"`
		LastDay      int64            `json:"lastDay"`
		SystemUptime string           `json:"systemUptime"`
	}

	ReportSummary struct {
		FromDate        Date    `json:"fromDate"`
		ToDate          Date    `json:"toDate"`
		TotalAmountPaid Decimal `json:"totalAmountPaid"`
		TotalAmountDue  Decimal `json:"totalAmountDue"`
		GrandTotal      Decimal `json:"grandTotal"`
		TotalWorkHours  Decimal `json:"totalWorkHours"`
		TotalEntries    int64   `json:"totalEntries"`
	}

	// Identity is the persisted view of the logged-in user.
	Identity struct {
		Username string `json:"username"`
		Role     Role   `json:"role"`
	}

	Credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	AuthResponse struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		TokenType    string `json:"tokenType"`
		Username     string `json:"username"`
		Role         Role   `json:"role"`
	}
)

var ErrInvalidDate = errors.New("invalid date")

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleUser
}

func (l LogLevel) IsValid() bool {
	switch l {
	case LevelError, LevelWarn, LevelInfo, LevelDebug, LevelTrace:
		return true
	}
	return false
}

// Levels lists log levels from most to least severe.
func Levels() []LogLevel {
	return []LogLevel{LevelError, LevelWarn, LevelInfo, LevelDebug, LevelTrace}
}

// Identity returns the identity carried by a successful login.
func (a AuthResponse) Identity() Identity {
	return Identity{Username: a.Username, Role: a.Role}
}

// PreviewTotals fills the derived money fields the server computes on save.
// The result is only a preview; the stored values always come back from the API.
func (e Event) PreviewTotals() Event {
	lunchRate := e.LunchRate
	tastingRate := e.TastingRate
	if e.SpecialPriceEnabled {
		if e.SpecialLunchPrice > 0 {
			lunchRate = e.SpecialLunchPrice
		}
		if e.SpecialTastingPrice > 0 {
			tastingRate = e.SpecialTastingPrice
		}
	}
	e.LunchTotal = lunchRate.Mul(e.AdultLunchGuests)
	e.TastingTotal = tastingRate.Mul(e.AdultTastingGuests)
	e.LunchAndTastingTotal = e.LunchTotal.Add(e.TastingTotal)
	e.GrandTotal = e.LunchAndTastingTotal.Add(e.AddedWinesValue).Add(e.ExtraChargeAmount)
	return e
}

// Total is paid plus due.
func (e Entry) Total() Decimal {
	return e.AmountPaid.Add(e.AmountDue)
}

// Label is the human readable name used in confirmation prompts.
func (e Event) Label() string {
	parts := []string{e.VisitDate.String()}
	if s := strings.TrimSpace(e.Company); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(e.ContactName); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " · ")
}

// CountActiveAdmins counts users that are both active and ADMIN.
func CountActiveAdmins(users []User) int {
	n := 0
	for _, u := range users {
		if u.Active && u.Role == RoleAdmin {
			n++
		}
	}
	return n
}

// Date is a calendar day carried as yyyy-MM-dd on the wire.
type Date struct {
	time.Time
}

const DateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	// Timestamps are accepted and truncated to the day.
	if len(*s) > len(DateLayout) {
		*s = (*s)[:len(DateLayout)]
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Timestamp accepts both zoned and zone-less ISO-8601 date-times.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format("2006-01-02T15:04:05"))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, *s); err == nil {
			*t = Timestamp{Time: parsed}
			return nil
		}
	}
	return errors.New("invalid timestamp: " + *s)
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
