package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/louisbranch/plughost/internal/platform/i18n/catalog"
	"github.com/louisbranch/plughost/internal/services/host/notify"
	"github.com/louisbranch/plughost/internal/services/host/session"
	"github.com/louisbranch/plughost/internal/services/host/state"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type statusError struct{ code int }

func (e statusError) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusError) HTTPStatus() int { return e.code }

type enabler struct{ enabled int }

func (e *enabler) Enable() { e.enabled++ }

func newDispatcher(t *testing.T) (*Dispatcher, *notify.Board, *state.Store, *enabler) {
	t.Helper()
	bundle, err := catalog.LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded: %v", err)
	}
	board := notify.NewBoard(nil)
	store := state.NewStore()
	busy := &enabler{}
	return New(Config{Toaster: board, Translator: bundle, Store: store, Busy: busy}), board, store, busy
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		category Category
		code     int
	}{
		{name: "400", err: statusError{http.StatusBadRequest}, category: CategoryConstraint, code: 400},
		{name: "401", err: statusError{http.StatusUnauthorized}, category: CategoryUnauthorized, code: 401},
		{name: "403", err: statusError{http.StatusForbidden}, category: CategoryForbidden, code: 403},
		{name: "500", err: statusError{http.StatusInternalServerError}, category: CategoryServer, code: 500},
		{name: "404", err: statusError{http.StatusNotFound}, category: CategoryUnexpected, code: 404},
		{name: "wrapped", err: fmt.Errorf("call: %w", statusError{http.StatusForbidden}), category: CategoryForbidden, code: 403},
		{name: "grpc unauthenticated", err: status.Error(codes.Unauthenticated, "no"), category: CategoryUnauthorized, code: 401},
		{name: "grpc invalid", err: status.Error(codes.InvalidArgument, "bad"), category: CategoryConstraint, code: 400},
		{name: "grpc internal", err: status.Error(codes.Internal, "boom"), category: CategoryServer, code: 500},
		{name: "grpc unknown", err: status.Error(codes.Unknown, "?"), category: CategoryUnexpected, code: 0},
		{name: "plain", err: errors.New("network down"), category: CategoryUnexpected, code: 0},
		{name: "nil", err: nil, category: CategoryUnexpected, code: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			category, code := Classify(tc.err)
			if category != tc.category || code != tc.code {
				t.Fatalf("Classify = %s/%d, want %s/%d", category, code, tc.category, tc.code)
			}
		})
	}
}

func TestHandleUnauthorizedLogsOut(t *testing.T) {
	t.Parallel()

	d, board, store, busy := newDispatcher(t)
	store.Commit(state.MutationLogin, session.Identity{Token: "tok"})

	if got := d.Handle(statusError{http.StatusUnauthorized}, ""); got != CategoryUnauthorized {
		t.Fatalf("Handle = %s", got)
	}
	if !store.User().IsAnonymous() {
		t.Fatal("expected logout on 401")
	}
	if busy.enabled != 1 {
		t.Fatalf("busy enabled = %d, want 1", busy.enabled)
	}
	visible := board.Visible()
	if len(visible) != 1 {
		t.Fatalf("toasts = %d, want 1", len(visible))
	}
	toast := visible[0]
	if toast.Variant != notify.VariantDanger || toast.Title != "Error" {
		t.Fatalf("toast = %+v", toast)
	}
	if toast.Message == "" || toast.Message == CategoryUnauthorized.MessageKey() {
		t.Fatalf("message = %q, want localized text", toast.Message)
	}
	if !strings.HasPrefix(toast.ID, "OPENSILEX-TOAST") {
		t.Fatalf("ID = %q", toast.ID)
	}
}

func TestHandleNotFoundIsUnexpectedWithoutLogout(t *testing.T) {
	t.Parallel()

	d, board, store, _ := newDispatcher(t)
	store.Commit(state.MutationLogin, session.Identity{Token: "tok"})

	if got := d.Handle(statusError{http.StatusNotFound}, ""); got != CategoryUnexpected {
		t.Fatalf("Handle = %s", got)
	}
	if store.User().IsAnonymous() {
		t.Fatal("404 must not log out")
	}
	if len(board.Visible()) != 1 {
		t.Fatal("expected one toast")
	}
}

func TestHandleUsesCallerMessage(t *testing.T) {
	t.Parallel()

	d, board, _, _ := newDispatcher(t)
	d.Handle(statusError{http.StatusBadRequest}, "Name already used")
	visible := board.Visible()
	if len(visible) != 1 || visible[0].Message != "Name already used" {
		t.Fatalf("toasts = %+v", visible)
	}
}

func TestToastsAreDeduplicated(t *testing.T) {
	t.Parallel()

	d, board, _, _ := newDispatcher(t)
	d.Handle(statusError{http.StatusForbidden}, "")
	d.Handle(statusError{http.StatusForbidden}, "")
	d.ShowSuccess("Saved")
	d.ShowSuccess("Saved")
	d.ShowInfo("Saved")

	visible := board.Visible()
	if len(visible) != 3 {
		t.Fatalf("toasts = %d, want 3", len(visible))
	}
	success := visible[1]
	if success.Variant != notify.VariantSuccess || success.AutoHide != AutoHide || !success.NoCloseButton {
		t.Fatalf("success toast = %+v", success)
	}
}

func TestConcurrentIdenticalErrorsShowOneToast(t *testing.T) {
	t.Parallel()

	d, board, _, _ := newDispatcher(t)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			d.Handle(statusError{http.StatusInternalServerError}, "")
		}()
	}
	close(start)
	wg.Wait()

	if got := len(board.Visible()); got != 1 {
		t.Fatalf("toasts = %d, want 1", got)
	}
}

func TestToastIDDeterministic(t *testing.T) {
	t.Parallel()

	a := ToastID("m", "t", notify.VariantInfo)
	if a != ToastID("m", "t", notify.VariantInfo) {
		t.Fatal("expected deterministic id")
	}
	if a == ToastID("m", "t", notify.VariantSuccess) {
		t.Fatal("variant must change id")
	}
}

func TestDispatcherWithoutCollaborators(t *testing.T) {
	t.Parallel()

	d := New(Config{})
	if got := d.Handle(errors.New("x"), ""); got != CategoryUnexpected {
		t.Fatalf("Handle = %s", got)
	}
	d.ShowInfo("ignored")
}

func TestHandleUsesBackendLocalizedMessage(t *testing.T) {
	t.Parallel()

	st, err := status.New(codes.PermissionDenied, "denied").WithDetails(&errdetails.LocalizedMessage{
		Locale:  "fr",
		Message: "Action interdite",
	})
	if err != nil {
		t.Fatalf("WithDetails: %v", err)
	}

	d, board, _, _ := newDispatcher(t)
	if got := d.Handle(st.Err(), ""); got != CategoryForbidden {
		t.Fatalf("Handle = %s, want forbidden", got)
	}
	visible := board.Visible()
	if len(visible) != 1 || visible[0].Message != "Action interdite" {
		t.Fatalf("toasts = %+v", visible)
	}
	if got := LocalizedMessage(errors.New("plain")); got != "" {
		t.Fatalf("LocalizedMessage(plain) = %q", got)
	}
}
