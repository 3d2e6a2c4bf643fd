package console

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/aliases"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
)

const (
	MessageAddressRequired = "Address is required"
	MessageTargetRequired  = "Target is required"
)

// AliasesAPI is the alias API the aliases view runs against.
type AliasesAPI interface {
	resource.Source[aliases.Alias]
	CreateOrUpdate(ctx context.Context, mutation aliases.Mutation) (aliases.Alias, error)
	Delete(ctx context.Context, address string) error
	SetActive(ctx context.Context, address string, flag aliases.ActiveFlag) error
}

// AliasDraft is the editable form of an alias.
type AliasDraft struct {
	Address string
	Target  string
	Comment string
	Active  bool
}

func seedAliasDraft(target *aliases.Alias) AliasDraft {
	if target == nil {
		return AliasDraft{Active: true}
	}
	return AliasDraft{
		Address: target.Address,
		Target:  target.Target,
		Comment: target.Comment,
		Active:  target.Active,
	}
}

func validateAliasDraft(_ *aliases.Alias, draft AliasDraft) []string {
	var messages []string
	if strings.TrimSpace(draft.Address) == "" {
		messages = append(messages, MessageAddressRequired)
	}
	if strings.TrimSpace(draft.Target) == "" {
		messages = append(messages, MessageTargetRequired)
	}
	return messages
}

// AliasesView is the aliases page. It has no default sort.
type AliasesView struct {
	Table  *Table[aliases.Alias]
	Edit   *EditModal[aliases.Alias, AliasDraft]
	Delete *DeleteModal
	Active *InlineEditor[aliases.ActiveFlag]
	Reload *ReloadController
}

func NewAliasesView(api AliasesAPI, cfg ViewConfig) *AliasesView {
	cfg = cfg.withDefaults()
	provider := resource.NewProvider(aliases.Schema(), resource.Source[aliases.Alias](api))
	return &AliasesView{
		Table: NewTable(provider, cfg.tableConfig(nil)),
		Edit: NewEditModal(EditModalConfig[aliases.Alias, AliasDraft]{
			Seed:     seedAliasDraft,
			Validate: validateAliasDraft,
			Submit: func(ctx context.Context, target *aliases.Alias, draft AliasDraft) error {
				mutation := aliases.Mutation{
					Address: strings.TrimSpace(draft.Address),
					Target:  strings.TrimSpace(draft.Target),
					Comment: strings.TrimSpace(draft.Comment),
					Active:  draft.Active,
				}
				if target != nil {
					prior := target.Address
					mutation.PriorAddress = &prior
				}
				_, err := api.CreateOrUpdate(ctx, mutation)
				return err
			},
			Reload: cfg.Reload,
			Logger: cfg.Logger,
		}),
		Delete: NewDeleteModal(api.Delete, cfg.Reload, cfg.Logger),
		Active: NewInlineEditor("active", api.SetActive, cfg.Reload, cfg.Logger),
		Reload: cfg.Reload,
	}
}

// ToggleActive flips the active flag of row.
func (v *AliasesView) ToggleActive(ctx context.Context, row aliases.Alias) {
	v.Active.Change(ctx, row.Address, aliases.ActiveFlag{Active: !row.Active})
}
