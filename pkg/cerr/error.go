package cerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/kazz187/chatbridge/pkg/clog"
)

type Error struct {
	Code  Code
	Msg   string // returned to the caller together with the code
	Err   error  // underlying error, kept for the logs only
	Stack string
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if code.IsServerError() {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExtractToHTTPResponse writes the response or error captured in the request
// context. Unknown error types are masked as Internal.
func ExtractToHTTPResponse(ctx context.Context, rw http.ResponseWriter, rr *responseReceiver) {
	if rr.err != nil {
		var cErr *Error
		if !errors.As(rr.err, &cErr) {
			cErr = NewError(Internal, "server error", rr.err)
		}
		clog.AddError(ctx, cErr)
		if cErr.Stack != "" {
			clog.AddAttribute(ctx, "error.stack", cErr.Stack)
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(cErr.Code.HTTPStatus())
		if err := json.NewEncoder(rw).Encode(errorBody{
			Code:    cErr.Code.String(),
			Message: cErr.Msg,
		}); err != nil {
			slog.WarnContext(ctx, "failed to encode error response", "error", err)
		}
		return
	}
	if rr.response != nil {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(rr.status)
		if err := json.NewEncoder(rw).Encode(rr.response); err != nil {
			slog.WarnContext(ctx, "failed to encode response", "error", err)
		}
	}
}
