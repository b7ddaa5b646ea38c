package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/formkeeper/internal/types"
)

// Document and expression errors map to INVALID_ARGUMENT.
var invalidArgument = []error{
	types.ErrInvalidSpec,
	types.ErrDuplicateField,
	types.ErrConditionalCycle,
	types.ErrUnknownFieldType,
	types.ErrUnknownRuleType,
	types.ErrInvalidRuleParams,
	types.ErrInvalidPath,
	types.ErrPathTooDeep,
	types.ErrTooManyWildcards,
	types.ErrWildcardInFieldRef,
	types.ErrTooManyInValues,
	types.ErrEmptyExpression,
	types.ErrInvalidOperator,
	types.ErrCoercionFailed,
}

// statusCode classifies err.
// Unknown sessions and specs map to NOT_FOUND.
// Session limits and closed controllers map to UNAVAILABLE, as do database errors.
// Context timeouts map to DEADLINE_EXCEEDED.
func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, types.ErrSessionNotFound), errors.Is(err, types.ErrSpecNotFound):
		return codes.NotFound
	case errors.Is(err, types.ErrTooManySessions), errors.Is(err, types.ErrClosed):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	for _, target := range invalidArgument {
		if errors.Is(err, target) {
			return codes.InvalidArgument
		}
	}
	return codes.Unavailable
}

// toStatus converts a service error to a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(statusCode(err), err.Error())
}
