package form

import (
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation"

	"winery/internal/core"
)

type UserForm struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	Role     core.Role `json:"role"`
	Active   bool      `json:"active"`

	mode Mode
}

func NewUserForm() UserForm {
	return UserForm{Role: core.RoleUser, Active: true, mode: ModeAdd}
}

// UserFormFrom never carries the password back into the form.
func UserFormFrom(u core.User) UserForm {
	return UserForm{Username: u.Username, Role: u.Role, Active: u.Active, mode: ModeEdit}
}

func ParseUser(v url.Values, d Dialog) (UserForm, error) {
	r := newReader(v)
	f := UserForm{
		Username: r.text("username"),
		Password: v.Get("password"),
		Role:     core.Role(r.text("role")),
		Active:   r.checkbox("active"),
		mode:     d.Mode,
	}
	return f, r.merge(f.Validate())
}

// Validate requires a password only when creating; on edit an empty password
// means "keep the current one".
func (f *UserForm) Validate() error {
	password := []validation.Rule{validation.Length(6, 100)}
	if f.mode != ModeEdit {
		password = append([]validation.Rule{validation.Required}, password...)
	}
	return validation.ValidateStruct(f,
		validation.Field(&f.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&f.Password, password...),
		validation.Field(&f.Role, validation.Required, validation.In(core.RoleAdmin, core.RoleUser)),
	)
}

// User drops an empty password so the API leaves the stored one alone.
func (f UserForm) User() core.User {
	return core.User{Username: f.Username, Password: f.Password, Role: f.Role, Active: f.Active}
}

// CanDeleteUser reports whether target may be deleted without leaving the
// system with no active administrator. users must be the full user set.
func CanDeleteUser(users []core.User, target core.User) bool {
	if !target.Active || target.Role != core.RoleAdmin {
		return true
	}
	return core.CountActiveAdmins(users) > 1
}

// CanDeactivateUser follows the same rule as CanDeleteUser.
func CanDeactivateUser(users []core.User, target core.User) bool {
	return CanDeleteUser(users, target)
}

// CanSaveUser checks an edit that could demote or deactivate the last admin.
func CanSaveUser(users []core.User, current core.User, next core.User) bool {
	if next.Active && next.Role == core.RoleAdmin {
		return true
	}
	return CanDeleteUser(users, current)
}
