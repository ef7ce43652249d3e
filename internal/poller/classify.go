package poller

import (
	"context"
	"errors"

	"hwbot/internal/homework"
	"hwbot/internal/practicum"
)

// Action is what the loop does with a cycle error.
type Action int

const (
	// ActionNone: the cycle succeeded.
	ActionNone Action = iota
	// ActionIdle: nothing to report; not a failure.
	ActionIdle
	// ActionLogAndContinue: log, optionally report to the chat, sleep, retry.
	ActionLogAndContinue
	// ActionStop: shutdown in progress.
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionIdle:
		return "idle"
	case ActionLogAndContinue:
		return "log_and_continue"
	case ActionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Classify maps a cycle error to the loop's policy. Every fetch, validation
// and formatting failure is transient from the loop's point of view: the
// process is never taken down by the upstream API.
func Classify(err error) Action {
	switch {
	case err == nil:
		return ActionNone
	case errors.Is(err, context.Canceled):
		return ActionStop
	case homework.KindOf(err) == homework.KindEmpty:
		return ActionIdle
	default:
		return ActionLogAndContinue
	}
}

// errorKind names the error for logs and events.
func errorKind(err error) string {
	if k := practicum.KindOf(err); k != 0 {
		return "api." + k.String()
	}
	if k := homework.KindOf(err); k != 0 {
		return "response." + k.String()
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "unknown"
}
