package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Call is the single entry point for invoking a tool. It validates raw with
// the tool's declared validator, executes the tool and classifies failures:
// validation failures are CodeInvalidParams, a classified error returned by
// the tool is returned as that *Error even when wrapped, and anything else,
// panics included, becomes CodeInternalError naming the tool.
//
// Call logs through the zerolog logger attached to ctx, if any.
func Call(ctx context.Context, t Tool, raw any) (*Result, error) {
	def := t.Definition()
	logger := log.Ctx(ctx).With().Str("tool", def.Name).Logger()

	validator := t.Validator()
	if validator == nil {
		validator = Structural()
	}

	logger.Debug().
		Str("strategy", string(validator.Strategy())).
		Interface("args", raw).
		Msg("Calling tool")

	args, err := validator.Validate(def.InputSchema, raw)
	if err != nil {
		if classified, ok := AsError(err); ok {
			err = classified
		} else {
			err = &Error{Code: CodeInvalidParams, Message: "invalid parameters: " + err.Error(), Cause: err}
		}
		logger.Warn().Err(err).Msg("Tool arguments rejected")
		return nil, err
	}

	start := time.Now()
	result, err := execute(ctx, t, args)
	duration := time.Since(start)

	if err != nil {
		if classified, ok := AsError(err); ok {
			err = classified
		} else {
			err = Internal(def.Name, err)
		}
		logger.Error().Err(err).Dur("duration", duration).Msg("Tool execution failed")
		return nil, err
	}

	if result == nil {
		result = &Result{Content: []Content{}}
	}

	logger.Debug().
		Dur("duration", duration).
		Bool("is_error", result.IsError).
		Msg("Tool execution completed")

	return result, nil
}

func execute(ctx context.Context, t Tool, args Args) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Execute(ctx, args)
}
