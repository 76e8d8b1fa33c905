package dispatch

import (
	"errors"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Category groups failed remote calls by how they are reported.
type Category string

const (
	CategoryConstraint   Category = "constraint"
	CategoryUnauthorized Category = "unauthorized"
	CategoryForbidden    Category = "forbidden"
	CategoryServer       Category = "server"
	CategoryUnexpected   Category = "unexpected"
)

// MessageKey returns the localization key of the category's default message.
func (c Category) MessageKey() string {
	return "component.common.errors." + string(c) + "-error"
}

// TitleKey is the localization key of every error toast title.
const TitleKey = "component.common.errors.error-title"

type httpStatuser interface {
	HTTPStatus() int
}

// StatusOf extracts the HTTP status carried by err, mapping gRPC codes the
// same way the web layer does.
func StatusOf(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var statuser httpStatuser
	if errors.As(err, &statuser) {
		if code := statuser.HTTPStatus(); code > 0 {
			return code, true
		}
	}
	st, ok := status.FromError(err)
	if !ok {
		return 0, false
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return http.StatusBadRequest, true
	case codes.Unauthenticated:
		return http.StatusUnauthorized, true
	case codes.PermissionDenied:
		return http.StatusForbidden, true
	case codes.NotFound:
		return http.StatusNotFound, true
	case codes.FailedPrecondition:
		return http.StatusConflict, true
	case codes.Internal:
		return http.StatusInternalServerError, true
	case codes.Unavailable:
		return http.StatusServiceUnavailable, true
	default:
		return 0, false
	}
}

// Classify returns the category of err and the status it carried, zero
// when none.
func Classify(err error) (Category, int) {
	code, ok := StatusOf(err)
	if !ok {
		return CategoryUnexpected, 0
	}
	switch code {
	case http.StatusBadRequest:
		return CategoryConstraint, code
	case http.StatusUnauthorized:
		return CategoryUnauthorized, code
	case http.StatusForbidden:
		return CategoryForbidden, code
	case http.StatusInternalServerError:
		return CategoryServer, code
	default:
		return CategoryUnexpected, code
	}
}

// LocalizedMessage returns the user-facing message attached to a gRPC status
// error, if any.
func LocalizedMessage(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, detail := range st.Details() {
		if localized, ok := detail.(*errdetails.LocalizedMessage); ok && localized.GetMessage() != "" {
			return localized.GetMessage()
		}
	}
	return ""
}
