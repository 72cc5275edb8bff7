package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"winery/internal/amqp"
	"winery/internal/core"
	"winery/internal/sheets"
	sheetsmem "winery/internal/sheets/memory"
	"winery/internal/winery"
	"winery/internal/winery/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock  *clock
	api    *memory.API
	store  *sheetsmem.Store
	worker *ReportWorker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)}
	api := memory.New(
		memory.WithClock(clk.Now),
		memory.WithTokenTTL(time.Hour),
		memory.WithPasswordCost(bcrypt.MinCost),
	)
	store := sheetsmem.New()
	w := NewReportWorker(api, store, core.Credentials{Username: "user", Password: "user"}, nil, WithClock(clk.Now))
	return &fixture{clock: clk, api: api, store: store, worker: w}
}

func (f *fixture) addEntry(t *testing.T, date core.Date, paid, due string) core.Entry {
	t.Helper()
	resp, err := f.api.Login(context.Background(), core.Credentials{Username: "admin", Password: "admin"})
	require.NoError(t, err)
	ctx := winery.WithToken(context.Background(), resp.AccessToken)
	e, err := f.api.CreateEntry(ctx, core.Entry{
		Date: date, Description: "Harvest", PersonID: 1, CategoryID: 1,
		WorkHours: core.MustDecimal("8"), AmountPaid: core.MustDecimal(paid), AmountDue: core.MustDecimal(due),
	})
	require.NoError(t, err)
	return e
}

func TestHandleRecordChanged_ExportsEntryMonth(t *testing.T) {
	f := newFixture(t)
	f.addEntry(t, core.NewDate(2026, 3, 4), "100", "20")
	e := f.addEntry(t, core.NewDate(2026, 3, 28), "50", "0")
	f.addEntry(t, core.NewDate(2026, 4, 1), "999", "0")

	msg := amqp.NewRecordChanged(core.ResourceEntries, e.ID, core.ActionInsert, "admin").WithDate(e.Date)
	require.NoError(t, f.worker.HandleRecordChanged(context.Background(), msg))

	rows, err := f.store.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "2026-03", row.Period)
	assert.Equal(t, "2026-03-01", row.FromDate.String())
	assert.Equal(t, "2026-03-31", row.ToDate.String())
	assert.Equal(t, int64(2), row.TotalEntries)
	assert.Equal(t, core.MustDecimal("150"), row.TotalAmountPaid)
	assert.Equal(t, core.MustDecimal("20"), row.TotalAmountDue)
	assert.Equal(t, core.MustDecimal("170"), row.GrandTotal)
	assert.Equal(t, core.MustDecimal("16"), row.TotalWorkHours)
	assert.Equal(t, f.clock.Now(), row.ExportedAt)
}

func TestHandleRecordChanged_RewritesSamePeriod(t *testing.T) {
	f := newFixture(t)
	e := f.addEntry(t, core.NewDate(2026, 3, 4), "100", "0")
	msg := amqp.NewRecordChanged(core.ResourceEntries, e.ID, core.ActionInsert, "admin").WithDate(e.Date)

	require.NoError(t, f.worker.HandleRecordChanged(context.Background(), msg))
	f.addEntry(t, core.NewDate(2026, 3, 5), "10", "0")
	require.NoError(t, f.worker.HandleRecordChanged(context.Background(), msg))

	rows, err := f.store.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, core.MustDecimal("110"), rows[0].GrandTotal)
	assert.Equal(t, 2, f.store.Writes())
}

func TestHandleRecordChanged_IgnoresOtherResources(t *testing.T) {
	f := newFixture(t)

	for _, resource := range []string{core.ResourcePersons, core.ResourceEvents, core.ResourceUsers} {
		msg := amqp.NewRecordChanged(resource, 1, core.ActionUpdate, "admin")
		require.NoError(t, f.worker.HandleRecordChanged(context.Background(), msg))
	}
	assert.Zero(t, f.store.Writes())
	assert.Zero(t, f.api.Calls("Summary"))
}

func TestHandleRecordChanged_InvalidDateIsDropped(t *testing.T) {
	f := newFixture(t)
	msg := amqp.NewRecordChanged(core.ResourceEntries, 1, core.ActionDelete, "admin")
	msg.Date = "31/03/2026"

	assert.NoError(t, f.worker.HandleRecordChanged(context.Background(), msg))
	assert.Zero(t, f.store.Writes())
}

func TestHandleRecordChanged_NoDateUsesCurrentMonth(t *testing.T) {
	f := newFixture(t)
	msg := amqp.NewRecordChanged(core.ResourceEntries, 1, core.ActionDelete, "admin")

	require.NoError(t, f.worker.HandleRecordChanged(context.Background(), msg))
	rows, err := f.store.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-05", rows[0].Period)
	assert.Zero(t, rows[0].TotalEntries)
}

func TestExport_ReusesTokenAndRenewsWhenExpired(t *testing.T) {
	f := newFixture(t)
	logins := f.api.Calls("Login")

	require.NoError(t, f.worker.ExportCurrentMonth(context.Background()))
	require.NoError(t, f.worker.ExportCurrentMonth(context.Background()))
	assert.Equal(t, logins+1, f.api.Calls("Login"), "token is reused while valid")

	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.worker.ExportCurrentMonth(context.Background()))
	assert.Equal(t, logins+2, f.api.Calls("Login"), "rejected token triggers one new login")
	assert.Equal(t, 3, f.store.Writes())
}

func TestExport_BadCredentials(t *testing.T) {
	f := newFixture(t)
	w := NewReportWorker(f.api, f.store, core.Credentials{Username: "user", Password: "nope"}, nil)

	err := w.ExportCurrentMonth(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
	assert.Zero(t, f.store.Writes())
}

type failingWriter struct{}

func (failingWriter) WriteReport(context.Context, sheets.ReportRow) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestExport_WriterErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	w := NewReportWorker(f.api, failingWriter{}, core.Credentials{Username: "user", Password: "user"}, nil, WithClock(f.clock.Now))

	err := w.ExportCurrentMonth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write report 2026-05")
}

func TestRun_StopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx, time.Hour) }()

	require.Eventually(t, func() bool { return f.store.Writes() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
