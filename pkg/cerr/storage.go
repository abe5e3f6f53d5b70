package cerr

import (
	"context"
	"errors"
	"fmt"

	"github.com/kazz187/chatbridge/pkg/storage"
)

func WrapStorageReadError(resource string, err error) *Error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewError(NotFound, fmt.Sprintf("%s not found", resource), err)
	case errors.Is(err, context.Canceled):
		return NewError(Canceled, "request canceled", err)
	default:
		return NewError(Internal, fmt.Sprintf("failed to read %s", resource), err)
	}
}

func WrapStorageWriteError(resource string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return NewError(Canceled, "request canceled", err)
	}
	return NewError(Internal, fmt.Sprintf("failed to write %s", resource), err)
}
