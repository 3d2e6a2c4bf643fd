package aliases

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
)

const (
	tableName        = "aliases"
	maxAddressLength = 320
	maxCommentLength = 512

	// FieldAddress is the column index of the alias address.
	FieldAddress = 0
	// FieldTarget is the column index of the delivery target.
	FieldTarget = 1
	// FieldComment is the column index of the free-form comment.
	FieldComment = 2
	// FieldReceived is the column index of the received counter.
	FieldReceived = 3
	// FieldSent is the column index of the sent counter.
	FieldSent = 4
	// FieldCreatedAt is the column index of the creation timestamp.
	FieldCreatedAt = 5
	// FieldActive is the column index of the active flag.
	FieldActive = 6
)

// Alias routes mail for Address to Target. The counters are maintained by
// the relay and are read-only here.
type Alias struct {
	Address   string    `gorm:"column:address;primaryKey;size:320;not null" json:"address"`
	Target    string    `gorm:"column:target;size:320;not null" json:"target"`
	Comment   string    `gorm:"column:comment;size:512;not null" json:"comment"`
	Received  int64     `gorm:"column:n_recv;not null" json:"n_recv"`
	Sent      int64     `gorm:"column:n_sent;not null" json:"n_sent"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	Active    bool      `gorm:"column:active;not null" json:"active"`
}

// TableName exposes the table backing aliases.
func (Alias) TableName() string {
	return tableName
}

// Schema describes the alias table. Address and comment are searchable.
func Schema() resource.Schema[Alias] {
	return resource.NewSchema(tableName,
		func(alias Alias) string { return alias.Address },
		resource.Field{Column: "address", Title: "Address", Sortable: true, Searchable: true},
		resource.Field{Column: "target", Title: "Target", Sortable: true},
		resource.Field{Column: "comment", Title: "Comment", Sortable: true, Searchable: true},
		resource.Field{Column: "n_recv", Title: "Received", Sortable: true},
		resource.Field{Column: "n_sent", Title: "Sent", Sortable: true},
		resource.Field{Column: "created_at", Title: "Created", Sortable: true},
		resource.Field{Column: "active", Title: "Active", Sortable: true},
	)
}

// Mutation is the create-or-update payload; PriorAddress is nil for a create.
type Mutation struct {
	PriorAddress *string `json:"prior_address,omitempty"`
	Address      string  `json:"address"`
	Target       string  `json:"target"`
	Comment      string  `json:"comment"`
	Active       bool    `json:"active"`
}

// IsUpdate reports whether the mutation targets an existing alias.
func (m Mutation) IsUpdate() bool {
	return m.PriorAddress != nil
}

// ActiveFlag is the payload of the inline active toggle.
type ActiveFlag struct {
	Active bool `json:"active"`
}

func normalizeAddress(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
