package services

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
	"winery/internal/winery"
	"winery/internal/winery/memory"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.RecordChanged
	err  error
}

func (p *fakePublisher) PublishRecordChanged(_ context.Context, msg *amqp.RecordChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) published() []*amqp.RecordChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*amqp.RecordChanged(nil), p.msgs...)
}

func setup(t *testing.T) (*RecordService, *memory.API, *fakePublisher, context.Context) {
	t.Helper()
	api := memory.New(memory.WithPasswordCost(bcrypt.MinCost))
	resp, err := api.Login(context.Background(), core.Credentials{Username: "admin", Password: "admin"})
	require.NoError(t, err)
	ctx := WithActor(winery.WithToken(context.Background(), resp.AccessToken), "admin")

	pub := &fakePublisher{}
	svc := NewRecordService(api, NewOptions(api, 1000, time.Minute), pub, nil)
	return svc, api, pub, ctx
}

func TestRecordService_PublishesEntryChangesWithDate(t *testing.T) {
	svc, _, pub, ctx := setup(t)

	created, err := svc.CreateEntry(ctx, core.Entry{
		Date: core.NewDate(2026, 4, 12), Description: "Pruning",
		PersonID: 1, CategoryID: 1, AmountPaid: core.MustDecimal("50"),
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteEntry(ctx, created.ID))

	msgs := pub.published()
	require.Len(t, msgs, 2)
	assert.Equal(t, core.ResourceEntries, msgs[0].Resource)
	assert.Equal(t, core.ActionInsert, msgs[0].Action)
	assert.Equal(t, "2026-04-12", msgs[0].Date)
	assert.Equal(t, "admin", msgs[0].ChangedBy)
	assert.Equal(t, core.ActionDelete, msgs[1].Action)
	assert.Equal(t, "2026-04-12", msgs[1].Date)
}

func TestRecordService_PublishFailureDoesNotFailWrite(t *testing.T) {
	svc, api, pub, ctx := setup(t)
	pub.err = errors.New("broker down")

	p, err := svc.CreatePerson(ctx, core.Person{Name: "Tamar", Active: true})
	require.NoError(t, err)

	got, err := api.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tamar", got.Name)
}

func TestRecordService_NilPublisher(t *testing.T) {
	_, api, _, ctx := setup(t)
	svc := NewRecordService(api, nil, nil, nil)

	_, err := svc.CreateCategory(ctx, core.Category{Name: "Labels", Color: "#000000", Active: true})
	assert.NoError(t, err)
}

func TestRecordService_InvalidatesOptions(t *testing.T) {
	_, api, _, ctx := setup(t)
	options := NewOptions(api, 1000, time.Hour)
	svc := NewRecordService(api, options, nil, nil)

	before, err := options.Persons(ctx)
	require.NoError(t, err)
	_, err = options.Persons(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, api.Calls("ListPersons"), "second read is served from cache")

	_, err = svc.CreatePerson(ctx, core.Person{Name: "Tamar", Active: true})
	require.NoError(t, err)

	after, err := options.Persons(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1)
	assert.Equal(t, 2, api.Calls("ListPersons"))
}

func TestRecordService_WriteErrorsAreWrapped(t *testing.T) {
	svc, _, pub, ctx := setup(t)

	err := svc.DeletePerson(ctx, 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, pub.published())

	err = svc.DeletePerson(context.Background(), 1)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestRecordService_LastAdminGuard(t *testing.T) {
	svc, api, pub, ctx := setup(t)

	err := svc.DeleteUser(ctx, 1)
	require.ErrorIs(t, err, ErrLastAdmin)
	assert.ErrorIs(t, err, core.ErrConflict)
	assert.Equal(t, "Cannot delete the last active admin user", core.UserMessage(err))
	assert.Zero(t, api.Calls("DeleteUser"), "guard runs before the API call")

	_, err = svc.DeactivateUser(ctx, 1)
	assert.ErrorIs(t, err, ErrLastAdmin)

	_, err = svc.UpdateUser(ctx, 1, core.User{Username: "admin", Role: core.RoleUser, Active: true})
	assert.ErrorIs(t, err, ErrLastAdmin)

	second, err := svc.CreateUser(ctx, core.User{Username: "boss", Password: "secret1", Role: core.RoleAdmin, Active: true})
	require.NoError(t, err)
	resp, err := api.Login(context.Background(), core.Credentials{Username: "boss", Password: "secret1"})
	require.NoError(t, err)
	bossCtx := WithActor(winery.WithToken(context.Background(), resp.AccessToken), "boss")

	_, err = svc.DeactivateUser(bossCtx, 1)
	require.NoError(t, err)

	err = svc.DeleteUser(bossCtx, second.ID)
	assert.ErrorIs(t, err, ErrLastAdmin, "the remaining active admin is protected")
	assert.Len(t, pub.published(), 2)
}

func TestRecordService_UnknownUser(t *testing.T) {
	svc, _, _, ctx := setup(t)
	err := svc.DeleteUser(ctx, 42)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
