package users

import (
	"time"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
)

const (
	tableName         = "users"
	maxUsernameLength = 190

	// FieldUsername is the column index of the username.
	FieldUsername = 0
	// FieldAdmin is the column index of the admin flag.
	FieldAdmin = 1
	// FieldActive is the column index of the active flag.
	FieldActive = 2
	// FieldCreatedAt is the column index of the creation timestamp.
	FieldCreatedAt = 3
)

// User is a console account. The password hash never leaves the server.
type User struct {
	Username     string    `gorm:"column:username;primaryKey;size:190;not null" json:"username"`
	PasswordHash string    `gorm:"column:password_hash;size:100;not null" json:"-"`
	Admin        bool      `gorm:"column:admin;not null" json:"admin"`
	Active       bool      `gorm:"column:active;not null" json:"active"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
}

// TableName exposes the table backing console accounts.
func (User) TableName() string {
	return tableName
}

// Schema describes how users are listed: ordered columns, which of them sort
// and search, and the username as identity.
func Schema() resource.Schema[User] {
	return resource.NewSchema(tableName,
		func(user User) string { return user.Username },
		resource.Field{Column: "username", Title: "Username", Sortable: true, Searchable: true},
		resource.Field{Column: "admin", Title: "Admin", Sortable: true},
		resource.Field{Column: "active", Title: "Active", Sortable: true},
		resource.Field{Column: "created_at", Title: "Created", Sortable: true},
	)
}

// DefaultSorting lists the newest accounts first.
func DefaultSorting() resource.Sorting {
	return resource.Sorting{{Field: FieldCreatedAt, Direction: resource.Descending}}
}

// Mutation is the create-or-update payload. PriorUsername is nil for a
// create; for an update it names the row to change, so a rename is safe.
type Mutation struct {
	PriorUsername *string `json:"prior_username,omitempty"`
	Username      string  `json:"username"`
	Password      string  `json:"password"`
	Admin         bool    `json:"admin"`
	Active        bool    `json:"active"`
}

// IsUpdate reports whether the mutation targets an existing account.
func (m Mutation) IsUpdate() bool {
	return m.PriorUsername != nil
}

// Flags is the payload of the admin/active inline toggles.
type Flags struct {
	Admin  bool `json:"admin"`
	Active bool `json:"active"`
}

// PasswordChange is the payload of the account settings password form.
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
