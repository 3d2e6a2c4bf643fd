// Package console holds the view models of the admin console: paginated
// tables, edit and delete modals and inline row editors. They are driven
// through an API client and carry no rendering.
package console

import (
	"sync/atomic"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
)

// ReloadController hands out a monotonically increasing token. Every bump
// pings the subscribed tables, which re-issue their current query.
type ReloadController struct {
	token    atomic.Uint64
	notifier *resource.Notifier
}

func NewReloadController() *ReloadController {
	return &ReloadController{notifier: resource.NewNotifier()}
}

// Bump advances the token and notifies subscribers.
func (r *ReloadController) Bump() uint64 {
	token := r.token.Add(1)
	r.notifier.Broadcast()
	return token
}

// Token returns the current token.
func (r *ReloadController) Token() uint64 {
	return r.token.Load()
}

func (r *ReloadController) Subscribe() (<-chan struct{}, func()) {
	return r.notifier.Subscribe()
}
