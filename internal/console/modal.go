package console

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrModalClosed is returned when acting on a modal that is not open.
	ErrModalClosed = errors.New("console: modal is not open")
	// ErrModalBusy is returned while a submission is in flight.
	ErrModalBusy = errors.New("console: modal is submitting")
	// ErrModalInvalid is returned when submitting a draft that fails validation.
	ErrModalInvalid = errors.New("console: draft has validation errors")
)

// ModalPhase is the lifecycle stage of a modal.
type ModalPhase int

const (
	ModalClosed ModalPhase = iota
	ModalOpen
	ModalSubmitting
)

func (p ModalPhase) String() string {
	switch p {
	case ModalOpen:
		return "open"
	case ModalSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// ModalState is a copy of an edit modal. A failed submission is reported as
// ModalOpen with a non-empty Message.
type ModalState[T any, D any] struct {
	Phase   ModalPhase
	Target  *T
	Draft   D
	Message string
	Errors  []string
}

// EditModalConfig wires an EditModal. Target is nil when creating.
type EditModalConfig[T any, D any] struct {
	Seed     func(target *T) D
	Validate func(target *T, draft D) []string
	Submit   func(ctx context.Context, target *T, draft D) error
	// Reload is bumped after a successful submission; nil skips the reload.
	Reload *ReloadController
	Logger *zap.Logger
}

// EditModal is the create-or-update form state machine:
// Closed -> Open -> Submitting -> Closed on success, or back to Open with
// the error message and the drafts intact on failure.
type EditModal[T any, D any] struct {
	seed     func(target *T) D
	validate func(target *T, draft D) []string
	submit   func(ctx context.Context, target *T, draft D) error
	reload   *ReloadController
	logger   *zap.Logger

	mu      sync.Mutex
	phase   ModalPhase
	target  *T
	draft   D
	message string
}

func NewEditModal[T any, D any](cfg EditModalConfig[T, D]) *EditModal[T, D] {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EditModal[T, D]{
		seed:     cfg.Seed,
		validate: cfg.Validate,
		submit:   cfg.Submit,
		reload:   cfg.Reload,
		logger:   logger,
	}
}

// Open shows the modal for target, or for a new record when target is nil,
// with drafts seeded from it.
func (m *EditModal[T, D]) Open(target *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == ModalSubmitting {
		return ErrModalBusy
	}
	var copied *T
	if target != nil {
		value := *target
		copied = &value
	}
	var draft D
	if m.seed != nil {
		draft = m.seed(copied)
	}
	m.phase = ModalOpen
	m.target = copied
	m.draft = draft
	m.message = ""
	return nil
}

// Update edits the draft in place.
func (m *EditModal[T, D]) Update(edit func(draft *D)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case ModalClosed:
		return ErrModalClosed
	case ModalSubmitting:
		return ErrModalBusy
	}
	edit(&m.draft)
	return nil
}

// Errors lists the validation messages for the current draft.
func (m *EditModal[T, D]) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorsLocked()
}

// CanSubmit reports whether Submit would be attempted.
func (m *EditModal[T, D]) CanSubmit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase == ModalOpen && len(m.errorsLocked()) == 0
}

// Submit runs the mutation. On success the modal closes and the reload
// controller is bumped; on failure the modal reopens with the error message.
func (m *EditModal[T, D]) Submit(ctx context.Context) error {
	m.mu.Lock()
	switch m.phase {
	case ModalClosed:
		m.mu.Unlock()
		return ErrModalClosed
	case ModalSubmitting:
		m.mu.Unlock()
		return ErrModalBusy
	}
	if len(m.errorsLocked()) > 0 {
		m.mu.Unlock()
		return ErrModalInvalid
	}
	m.phase = ModalSubmitting
	m.message = ""
	target, draft := m.target, m.draft
	m.mu.Unlock()

	err := m.submit(ctx, target, draft)

	m.mu.Lock()
	if err != nil {
		m.phase = ModalOpen
		m.message = err.Error()
		m.mu.Unlock()
		m.logger.Warn("submission failed", zap.Error(err))
		return err
	}
	var zero D
	m.phase = ModalClosed
	m.target = nil
	m.draft = zero
	m.mu.Unlock()

	if m.reload != nil {
		m.reload.Bump()
	}
	return nil
}

// Cancel closes an open modal. It has no effect while submitting.
func (m *EditModal[T, D]) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != ModalOpen {
		return
	}
	var zero D
	m.phase = ModalClosed
	m.target = nil
	m.draft = zero
	m.message = ""
}

// State returns a copy of the modal state.
func (m *EditModal[T, D]) State() ModalState[T, D] {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := ModalState[T, D]{
		Phase:   m.phase,
		Draft:   m.draft,
		Message: m.message,
	}
	if m.target != nil {
		value := *m.target
		state.Target = &value
	}
	if m.phase != ModalClosed {
		state.Errors = m.errorsLocked()
	}
	return state
}

func (m *EditModal[T, D]) errorsLocked() []string {
	if m.validate == nil || m.phase == ModalClosed {
		return nil
	}
	return m.validate(m.target, m.draft)
}

// DeleteModal is the confirm/cancel flow for deleting one record by identity.
type DeleteModal struct {
	remove func(ctx context.Context, identity string) error
	reload *ReloadController
	logger *zap.Logger

	mu      sync.Mutex
	pending string
	open    bool
}

func NewDeleteModal(remove func(ctx context.Context, identity string) error, reload *ReloadController, logger *zap.Logger) *DeleteModal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeleteModal{remove: remove, reload: reload, logger: logger}
}

// Request asks for confirmation to delete identity.
func (d *DeleteModal) Request(identity string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = identity
	d.open = true
}

// Pending returns the identity awaiting confirmation.
func (d *DeleteModal) Pending() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending, d.open
}

// Cancel drops the pending confirmation.
func (d *DeleteModal) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = ""
	d.open = false
}

// Confirm deletes the pending identity. The confirmation is cleared whatever
// the outcome; only a successful delete bumps the reload controller, and a
// failure is logged.
func (d *DeleteModal) Confirm(ctx context.Context) error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrModalClosed
	}
	identity := d.pending
	d.pending = ""
	d.open = false
	d.mu.Unlock()

	if err := d.remove(ctx, identity); err != nil {
		d.logger.Error("delete failed", zap.String("identity", identity), zap.Error(err))
		return err
	}
	if d.reload != nil {
		d.reload.Bump()
	}
	return nil
}
