package trace

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/skilleval/engine/pkg/types"
)

const (
	MaxTraceSize     = 10485760 // 10 MB
	MaxToolCalls     = 10000
	MaxCommands      = 10000
	MaxFiles         = 10000
	MaxOutputLength  = 2000000
	MaxCommandLength = 65536
)

// Validate checks structural limits on a trace.
// Returns nil if the trace is valid, or an RPCError describing the first failure.
func Validate(t *types.Trace) *types.RPCError {
	if !t.StartedAt.IsZero() && !t.EndedAt.IsZero() && t.EndedAt.Before(t.StartedAt) {
		return types.NewRPCError(
			types.ErrInvalidTrace,
			"trace ended_at is before started_at",
			types.ErrTypeInvalidTrace,
			false,
			fmt.Sprintf("started_at=%s ended_at=%s", t.StartedAt.Format("2006-01-02T15:04:05Z07:00"), t.EndedAt.Format("2006-01-02T15:04:05Z07:00")),
		)
	}

	if t.InputTokens < 0 || t.OutputTokens < 0 {
		return types.NewRPCError(
			types.ErrInvalidTrace,
			"trace token counts must be non-negative",
			types.ErrTypeInvalidTrace,
			false,
			fmt.Sprintf("input_tokens=%d output_tokens=%d", t.InputTokens, t.OutputTokens),
		)
	}

	if len(t.ToolCalls) > MaxToolCalls {
		return tooMany("tool_calls", len(t.ToolCalls), MaxToolCalls)
	}
	if len(t.CommandsRan) > MaxCommands {
		return tooMany("commands_ran", len(t.CommandsRan), MaxCommands)
	}
	if n := len(t.FilesCreated) + len(t.FilesModified); n > MaxFiles {
		return tooMany("files_created+files_modified", n, MaxFiles)
	}

	if len(t.FinalOutput) > MaxOutputLength {
		return types.NewRPCError(
			types.ErrInvalidTrace,
			fmt.Sprintf("trace final_output exceeds max length: %d > %d", len(t.FinalOutput), MaxOutputLength),
			types.ErrTypeInvalidTrace,
			false,
			"Truncate the captured agent output before submitting the trace.",
		)
	}

	for i, cmd := range t.CommandsRan {
		if len(cmd) > MaxCommandLength {
			return types.NewRPCError(
				types.ErrInvalidTrace,
				fmt.Sprintf("trace command %d exceeds max length: %d > %d", i, len(cmd), MaxCommandLength),
				types.ErrTypeInvalidTrace,
				false,
				"Commands longer than 64 KiB are not accepted.",
			)
		}
	}

	traceBytes, err := json.Marshal(t)
	if err != nil {
		return types.NewRPCError(
			types.ErrInvalidTrace,
			"trace could not be serialized for size check",
			types.ErrTypeInvalidTrace,
			false,
			err.Error(),
		)
	}
	if len(traceBytes) > MaxTraceSize {
		return types.NewRPCError(
			types.ErrInvalidTrace,
			fmt.Sprintf("trace exceeds max size: %d > %d bytes", len(traceBytes), MaxTraceSize),
			types.ErrTypeInvalidTrace,
			false,
			"Reduce trace size by truncating command lists or the final output. Max allowed: 10 MB.",
		)
	}

	return nil
}

func tooMany(field string, got, limit int) *types.RPCError {
	return types.NewRPCError(
		types.ErrInvalidTrace,
		fmt.Sprintf("trace exceeds max %s: %d > %d", field, got, limit),
		types.ErrTypeInvalidTrace,
		false,
		fmt.Sprintf("Reduce %s to %d entries or fewer.", field, limit),
	)
}
