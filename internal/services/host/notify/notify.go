// Package notify keeps the user-facing toast notifications of the host.
package notify

import (
	"encoding/json"
	"sync"
	"time"
)

// Variant styles a toast.
type Variant string

const (
	VariantDanger  Variant = "danger"
	VariantSuccess Variant = "success"
	VariantInfo    Variant = "info"
)

// Options configure one toast.
type Options struct {
	ID      string
	Title   string
	Variant Variant
	// AutoHide dismisses the toast after the delay. Zero keeps it until
	// dismissed.
	AutoHide      time.Duration
	NoCloseButton bool
}

// Toast is a shown notification.
type Toast struct {
	ID            string        `json:"id"`
	Message       string        `json:"message"`
	Title         string        `json:"title,omitempty"`
	Variant       Variant       `json:"variant"`
	AutoHide      time.Duration `json:"-"`
	NoCloseButton bool          `json:"no_close_button,omitempty"`
	ShownAt       time.Time     `json:"shown_at"`
}

// MarshalJSON encodes AutoHide in milliseconds.
func (t Toast) MarshalJSON() ([]byte, error) {
	type plain Toast
	return json.Marshal(struct {
		plain
		AutoHideMS int64 `json:"auto_hide_ms,omitempty"`
	}{plain: plain(t), AutoHideMS: t.AutoHide.Milliseconds()})
}

func (t Toast) expired(now time.Time) bool {
	return t.AutoHide > 0 && !now.Before(t.ShownAt.Add(t.AutoHide))
}

// Toaster shows toasts. ToastOnce must check the id and show the toast
// atomically, returning false when a visible toast already has opts.ID.
type Toaster interface {
	ToastOnce(message string, opts Options) bool
}

// Board is an in-memory Toaster.
type Board struct {
	mu     sync.Mutex
	now    func() time.Time
	toasts []Toast
}

var _ Toaster = (*Board)(nil)

// NewBoard returns an empty board. A nil now uses time.Now.
func NewBoard(now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	return &Board{now: now}
}

// Exists reports whether a visible toast has id.
func (b *Board) Exists(id string) bool {
	if id == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	return b.existsLocked(id)
}

// Toast shows message.
func (b *Board) Toast(message string, opts Options) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	b.appendLocked(message, opts)
}

// ToastOnce shows message unless a visible toast already has opts.ID. An
// empty id is always shown.
func (b *Board) ToastOnce(message string, opts Options) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	if opts.ID != "" && b.existsLocked(opts.ID) {
		return false
	}
	b.appendLocked(message, opts)
	return true
}

func (b *Board) existsLocked(id string) bool {
	for _, toast := range b.toasts {
		if toast.ID == id {
			return true
		}
	}
	return false
}

func (b *Board) appendLocked(message string, opts Options) {
	b.toasts = append(b.toasts, Toast{
		ID:            opts.ID,
		Message:       message,
		Title:         opts.Title,
		Variant:       opts.Variant,
		AutoHide:      opts.AutoHide,
		NoCloseButton: opts.NoCloseButton,
		ShownAt:       b.now(),
	})
}

// Dismiss removes every toast with id.
func (b *Board) Dismiss(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.toasts[:0]
	for _, toast := range b.toasts {
		if toast.ID != id {
			kept = append(kept, toast)
		}
	}
	b.toasts = kept
}

// Visible returns the toasts still shown, oldest first.
func (b *Board) Visible() []Toast {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	return append([]Toast(nil), b.toasts...)
}

func (b *Board) pruneLocked() {
	now := b.now()
	kept := b.toasts[:0]
	for _, toast := range b.toasts {
		if !toast.expired(now) {
			kept = append(kept, toast)
		}
	}
	b.toasts = kept
}
