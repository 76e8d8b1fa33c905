// Package dispatch reports failed remote calls to the user and invalidates
// the session when the backend rejects it.
package dispatch

import (
	"log"
	"strconv"
	"time"

	"github.com/louisbranch/plughost/internal/platform/i18n/catalog"
	"github.com/louisbranch/plughost/internal/services/host/notify"
	"github.com/louisbranch/plughost/internal/services/host/session"
	"github.com/louisbranch/plughost/internal/services/host/state"
)

// AutoHide is how long success and info toasts stay visible.
const AutoHide = 1500 * time.Millisecond

const toastPrefix = "OPENSILEX-TOAST"

// Enabler turns the busy indicator back on.
type Enabler interface {
	Enable()
}

// Config wires a Dispatcher. Translator, Store and Busy are optional.
type Config struct {
	Toaster    notify.Toaster
	Translator catalog.Translator
	Store      state.Committer
	Busy       Enabler
}

// Dispatcher routes failures to deduplicated toasts.
type Dispatcher struct {
	cfg Config
}

// New returns a dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{cfg: cfg}
}

// ToastID derives the deduplication id of a toast.
func ToastID(message, title string, variant notify.Variant) string {
	return toastPrefix + strconv.FormatInt(int64(session.HashCode(message+"|"+title+"|"+string(variant))), 10)
}

// Handle reports err. The toast shows message when non-empty, else the
// backend's localized message, else the category's default text. A 401 also
// logs the user out.
func (d *Dispatcher) Handle(err error, message string) Category {
	category, code := Classify(err)
	if d.cfg.Busy != nil {
		d.cfg.Busy.Enable()
	}
	if category == CategoryUnexpected {
		log.Printf("dispatch: unexpected error (status %d): %v", code, err)
	}
	if category == CategoryUnauthorized && d.cfg.Store != nil {
		d.cfg.Store.Commit(state.MutationLogout, nil)
	}
	if message == "" {
		message = LocalizedMessage(err)
	}
	if message == "" {
		message = d.translate(category.MessageKey())
	}
	d.ShowError(message)
	return category
}

// ShowError shows a danger toast titled with the localized error title.
func (d *Dispatcher) ShowError(message string) {
	d.show(message, notify.Options{
		Title:   d.translate(TitleKey),
		Variant: notify.VariantDanger,
	})
}

// ShowSuccess shows a short-lived success toast.
func (d *Dispatcher) ShowSuccess(message string) {
	d.show(message, notify.Options{Variant: notify.VariantSuccess, AutoHide: AutoHide, NoCloseButton: true})
}

// ShowInfo shows a short-lived info toast.
func (d *Dispatcher) ShowInfo(message string) {
	d.show(message, notify.Options{Variant: notify.VariantInfo, AutoHide: AutoHide, NoCloseButton: true})
}

func (d *Dispatcher) show(message string, opts notify.Options) {
	if d.cfg.Toaster == nil {
		return
	}
	opts.ID = ToastID(message, opts.Title, opts.Variant)
	d.cfg.Toaster.ToastOnce(message, opts)
}

func (d *Dispatcher) translate(key string) string {
	if d.cfg.Translator == nil {
		return key
	}
	return d.cfg.Translator.Translate(key)
}
