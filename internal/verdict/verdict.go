// Package verdict holds the reason codes reported to callers and the ordered
// guard chain used to evaluate preconditions.
package verdict

import (
	"context"
	"fmt"
)

// Code is a machine readable reason attached to every decision.
type Code string

const (
	OK Code = "OK"

	// Anti-cheat.
	Forwarded   Code = "FORWARDED"
	Future      Code = "FUTURE"
	Stale       Code = "STALE"
	RateLimited Code = "RATE_LIMITED"

	// Submission shape.
	InvalidCoordinates Code = "INVALID_COORDINATES"

	// Participant eligibility.
	NotRegistered      Code = "NOT_REGISTERED"
	ParticipantPending Code = "PARTICIPANT_PENDING"
	ParticipantBanned  Code = "PARTICIPANT_BANNED"

	// Gathering eligibility.
	GatheringNotFound      Code = "GATHERING_NOT_FOUND"
	GatheringInactive      Code = "GATHERING_INACTIVE"
	GatheringNotStarted    Code = "GATHERING_NOT_STARTED"
	GatheringClosed        Code = "GATHERING_CLOSED"
	GatheringMisconfigured Code = "GATHERING_MISCONFIGURED"
	OutOfRadius            Code = "OUT_OF_RADIUS"

	// Lifecycle.
	AlreadyCheckedIn  Code = "ALREADY_CHECKED_IN"
	NotCheckedIn      Code = "NOT_CHECKED_IN"
	AlreadyCheckedOut Code = "ALREADY_CHECKED_OUT"
	TooSoon           Code = "TOO_SOON"
)

// Verdict is the tagged result of a guard: either allow, or deny with a reason.
type Verdict struct {
	Allowed bool
	Code    Code
	Message string
}

func Allow() Verdict {
	return Verdict{Allowed: true, Code: OK}
}

func Deny(code Code, format string, a ...any) Verdict {
	return Verdict{Code: code, Message: fmt.Sprintf(format, a...)}
}

func (v Verdict) String() string {
	if v.Allowed {
		return string(OK)
	}
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// Guard is a named precondition over an input of type T.
type Guard[T any] struct {
	Name  string
	Check func(ctx context.Context, in T) Verdict
}

// Chain evaluates guards in order. The first denial wins and later guards are not run.
type Chain[T any] []Guard[T]

// Run returns the first denial, or Allow when every guard passes. The name of
// the guard that decided is returned alongside.
func (c Chain[T]) Run(ctx context.Context, in T) (Verdict, string) {
	for _, g := range c {
		if v := g.Check(ctx, in); !v.Allowed {
			return v, g.Name
		}
	}
	return Allow(), ""
}

// Then returns a new chain with the guards of next appended after c.
func (c Chain[T]) Then(next ...Guard[T]) Chain[T] {
	out := make(Chain[T], 0, len(c)+len(next))
	out = append(out, c...)
	return append(out, next...)
}
