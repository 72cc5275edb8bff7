package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"winery/internal/core"
	"winery/internal/winery"
	"winery/internal/winery/memory"
)

func TestParseFieldMap_KeepsOrder(t *testing.T) {
	m, err := ParseFieldMap([]byte(`{"zeta": 1, "alpha": "a", "mid": {"b": 2, "a": 1}, "none": null}`))
	require.NoError(t, err)

	names := make([]string, 0, len(m))
	for _, f := range m {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid", "none"}, names)

	v, ok := m.Get("mid")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(v))
}

func TestParseFieldMap_Invalid(t *testing.T) {
	m, err := ParseFieldMap(nil)
	assert.NoError(t, err)
	assert.Empty(t, m)

	m, err = ParseFieldMap([]byte("null"))
	assert.NoError(t, err)
	assert.Empty(t, m)

	_, err = ParseFieldMap([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = ParseFieldMap([]byte(`{"a": `))
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`null`, "null"},
		{``, "null"},
		{`"Harvest"`, "Harvest"},
		{`12.5`, "12.5"},
		{`true`, "true"},
		{`"exactly twenty chars"`, "exactly twenty chars"},
		{`"this description is far too long"`, "this description is …"},
		{`"ქართული ღვინის მარანი და რთველი"`, "ქართული ღვინის მარან…"},
		{`{"a": 1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(json.RawMessage(tt.raw)))
		})
	}
}

func TestDescribe_Insert(t *testing.T) {
	d, err := Describe(core.AuditLog{
		Action:    core.ActionInsert,
		NewValues: json.RawMessage(`{"name":"Nino","note":"","active":true,"color":null,"id":4}`),
	})
	require.NoError(t, err)

	ins, ok := d.(Insert)
	require.True(t, ok)
	assert.Equal(t, []Value{
		{Field: "name", Value: "Nino"},
		{Field: "active", Value: "true"},
		{Field: "id", Value: "4"},
	}, ins.Fields)
}

func TestDescribe_Update(t *testing.T) {
	d, err := Describe(core.AuditLog{
		Action:    core.ActionUpdate,
		OldValues: json.RawMessage(`{"name":"Nino","amount":10.0,"note":"old note","legacy":"x","gone":null}`),
		NewValues: json.RawMessage(`{"amount":10,"name":"Nino K.","note":null,"added":"y"}`),
	})
	require.NoError(t, err)

	upd, ok := d.(Update)
	require.True(t, ok)
	got := make([]string, 0, len(upd.Changes))
	for _, c := range upd.Changes {
		got = append(got, c.String())
	}
	assert.Equal(t, []string{
		"name: Nino → Nino K.",
		"note: old note → null",
		"added: null → y",
		"legacy: x → null",
	}, got)
}

func TestDescribe_DeleteAndUnknown(t *testing.T) {
	d, err := Describe(core.AuditLog{Action: core.ActionDelete, OldValues: json.RawMessage(`{"id":1}`)})
	require.NoError(t, err)
	assert.Equal(t, Delete{}, d)
	assert.Equal(t, core.ActionDelete, d.Action())

	_, err = Describe(core.AuditLog{ID: 3, Action: "MERGE"})
	assert.Error(t, err)

	_, err = Describe(core.AuditLog{ID: 3, Action: core.ActionUpdate, OldValues: json.RawMessage(`"broken"`)})
	assert.Error(t, err)
}

func TestTrail(t *testing.T) {
	api := memory.New(memory.WithPasswordCost(bcrypt.MinCost))
	resp, err := api.Login(context.Background(), core.Credentials{Username: "admin", Password: "admin"})
	require.NoError(t, err)
	ctx := winery.WithToken(context.Background(), resp.AccessToken)

	p, err := api.CreatePerson(ctx, core.Person{Name: "Tamar", Active: true})
	require.NoError(t, err)
	_, err = api.UpdatePerson(ctx, p.ID, core.Person{Name: "Tamar B.", Active: true})
	require.NoError(t, err)

	items, err := Trail(ctx, api, core.ResourcePersons, p.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	var sawInsert, sawUpdate bool
	for _, it := range items {
		switch d := it.Detail.(type) {
		case Insert:
			sawInsert = true
			assert.Contains(t, d.Fields, Value{Field: "name", Value: "Tamar"})
		case Update:
			sawUpdate = true
			assert.Contains(t, d.Changes, Change{Field: "name", Old: "Tamar", New: "Tamar B."})
		}
	}
	assert.True(t, sawInsert)
	assert.True(t, sawUpdate)

	_, err = Trail(context.Background(), api, core.ResourcePersons, p.ID)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}
