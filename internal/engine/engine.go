// Package engine wires the guards, the geofence, the attendance lifecycle and
// the ledger into the operations offered to the front-end and admin tooling.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"attendance-backend/internal/anticheat"
	"attendance-backend/internal/attendance"
	"attendance-backend/internal/errdef"
	"attendance-backend/internal/geofence"
	"attendance-backend/internal/model"
	"attendance-backend/internal/scoring"
	"attendance-backend/internal/store"
	"attendance-backend/internal/verdict"
)

// Action selects the transition a submission asks for.
type Action string

const (
	// ActionAuto checks in when the pair has no record yet and checks out otherwise.
	ActionAuto     Action = ""
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAuto, ActionCheckIn, ActionCheckOut:
		return true
	}
	return false
}

// Submission is a location claim aimed at one gathering.
type Submission struct {
	anticheat.Submission
	GatheringID int64
	Action      Action
}

// Outcome is reported for every submission. Business rejections are outcomes
// with Accepted false, never errors.
type Outcome struct {
	Accepted             bool                 `json:"accepted"`
	Code                 verdict.Code         `json:"reason_code"`
	Message              string               `json:"message,omitempty"`
	Kind                 model.AttendanceKind `json:"kind,omitempty"`
	DistanceMeters       *float64             `json:"distance_meters,omitempty"`
	PointsAwarded        *int                 `json:"points_awarded,omitempty"`
	DwellMinutes         *float64             `json:"dwell_minutes,omitempty"`
	RemainingWaitSeconds *int                 `json:"remaining_wait_seconds,omitempty"`
	Live                 bool                 `json:"live,omitempty"`
}

func rejected(v verdict.Verdict) Outcome {
	return Outcome{Code: v.Code, Message: v.Message}
}

// Notifier receives warning level changes after a successful escalation.
type Notifier interface {
	NotifyWarningChange(change scoring.WarningChange)
}

// Config holds engine level settings.
type Config struct {
	// DefaultRadiusMeters applies to gatherings registered without a radius.
	DefaultRadiusMeters float64
}

// Engine is the attendance verification and scoring facade.
type Engine struct {
	store        store.Store
	validator    *anticheat.Validator
	machine      *attendance.Machine
	ledger       *scoring.Ledger
	notifier     Notifier
	cfg          Config
	logger       *slog.Logger
	now          func() time.Time
	participants verdict.Chain[*model.Participant]
}

// New creates an engine. notifier may be nil.
func New(s store.Store, validator *anticheat.Validator, machine *attendance.Machine, ledger *scoring.Ledger, notifier Notifier, cfg Config, logger *slog.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		store:        s,
		validator:    validator,
		machine:      machine,
		ledger:       ledger,
		notifier:     notifier,
		cfg:          cfg,
		logger:       logger,
		now:          now,
		participants: verdict.Chain[*model.Participant]{ActiveGuard()},
	}
	if validator != nil {
		e.validator = validator.With(CoordinatesGuard())
	}
	return e
}

// CoordinatesGuard rejects claimed locations outside the valid latitude and
// longitude ranges. It runs after the anti-cheat guards so a forwarded location
// is reported as forwarded whatever it claims, and malformed attempts still
// count against the rate window.
func CoordinatesGuard() verdict.Guard[anticheat.Submission] {
	return verdict.Guard[anticheat.Submission]{
		Name: "coordinates",
		Check: func(_ context.Context, s anticheat.Submission) verdict.Verdict {
			if err := s.Coordinate.Validate(); err != nil {
				return verdict.Deny(verdict.InvalidCoordinates, "%v", err)
			}
			return verdict.Allow()
		},
	}
}

// ActiveGuard admits only active participants.
func ActiveGuard() verdict.Guard[*model.Participant] {
	return verdict.Guard[*model.Participant]{
		Name: "participant-active",
		Check: func(_ context.Context, p *model.Participant) verdict.Verdict {
			switch p.Status {
			case model.StatusActive:
				return verdict.Allow()
			case model.StatusPending:
				return verdict.Deny(verdict.ParticipantPending, "membership of %s is awaiting approval", p.FullName)
			case model.StatusBanned:
				return verdict.Deny(verdict.ParticipantBanned, "%s is banned", p.FullName)
			}
			panic(fmt.Sprintf("engine: unknown participant status %q", p.Status))
		},
	}
}

// SubmitLocation runs a submission through the participant guards, the
// anti-cheat guards followed by coordinate validation, gathering lookup,
// geofence and the lifecycle, in that order. The first rejection ends the
// flow. Only persistence failures are returned as errors; they are retryable.
func (e *Engine) SubmitLocation(ctx context.Context, sub Submission) (Outcome, error) {
	out, err := e.submit(ctx, sub)
	if err != nil {
		e.logger.ErrorContext(ctx, "submission failed",
			slog.Int64("participant_id", sub.ParticipantID),
			slog.Int64("gathering_id", sub.GatheringID),
			slog.Any("error", err))
		return Outcome{}, err
	}
	e.logger.InfoContext(ctx, "submission processed",
		slog.Int64("participant_id", sub.ParticipantID),
		slog.Int64("gathering_id", sub.GatheringID),
		slog.Bool("accepted", out.Accepted),
		slog.String("code", string(out.Code)))
	return out, nil
}

func (e *Engine) submit(ctx context.Context, sub Submission) (Outcome, error) {
	if !sub.Action.Valid() {
		return Outcome{}, errdef.NewBadRequest("unknown action %q", string(sub.Action))
	}

	p, err := e.store.GetParticipant(ctx, sub.ParticipantID)
	if errdef.IsNotFound(err) {
		return rejected(verdict.Deny(verdict.NotRegistered, "participant %d is not registered", sub.ParticipantID)), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if v, _ := e.participants.Run(ctx, p); !v.Allowed {
		return rejected(v), nil
	}

	check := e.validator.Validate(ctx, sub.Submission)
	if !check.OK {
		out := rejected(verdict.Verdict{Code: check.Code, Message: check.Message})
		out.Live = check.Live
		return out, nil
	}

	g, err := e.store.GetGathering(ctx, sub.GatheringID)
	if errdef.IsNotFound(err) {
		return rejected(verdict.Deny(verdict.GatheringNotFound, "gathering %d does not exist", sub.GatheringID)), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if !g.HasCoordinate() {
		e.logger.WarnContext(ctx, "gathering has no registered coordinate", slog.Int64("gathering_id", g.ID))
		return rejected(verdict.Deny(verdict.GatheringMisconfigured, "gathering %q has no registered location", g.Title)), nil
	}

	radius := g.RadiusMeters
	if radius <= 0 {
		radius = e.cfg.DefaultRadiusMeters
	}
	center := geofence.Coordinate{Latitude: *g.Latitude, Longitude: *g.Longitude}
	inside, distance := geofence.WithinRadius(sub.Coordinate, center, radius)
	if !inside {
		out := rejected(verdict.Deny(verdict.OutOfRadius, "you are %.0f m away, move within %.0f m of %q", distance, radius, g.Title))
		out.DistanceMeters = &distance
		out.Live = check.Live
		return out, nil
	}

	action, err := e.resolve(ctx, sub)
	if err != nil {
		return Outcome{}, err
	}

	var res attendance.Result
	var kind model.AttendanceKind
	switch action {
	case ActionCheckIn:
		kind = model.KindCheckIn
		res, err = e.machine.CheckIn(ctx, sub.ParticipantID, g)
	case ActionCheckOut:
		kind = model.KindCheckOut
		res, err = e.machine.CheckOut(ctx, sub.ParticipantID, g)
	default:
		panic(fmt.Sprintf("engine: unresolved action %q", action))
	}
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Accepted:       res.Allowed,
		Code:           res.Code,
		Message:        res.Message,
		Kind:           kind,
		DistanceMeters: &distance,
		Live:           check.Live,
	}
	if res.Record != nil {
		out.DwellMinutes = res.Record.DwellMinutes
	}
	if res.Points != nil {
		points := res.Points.Delta
		out.PointsAwarded = &points
	}
	if res.RemainingWait > 0 {
		secs := int(math.Ceil(res.RemainingWait.Seconds()))
		out.RemainingWaitSeconds = &secs
	}
	return out, nil
}

func (e *Engine) resolve(ctx context.Context, sub Submission) (Action, error) {
	if sub.Action != ActionAuto {
		return sub.Action, nil
	}
	state, err := e.machine.State(ctx, sub.ParticipantID, sub.GatheringID)
	if err != nil {
		return "", err
	}
	switch state {
	case attendance.StateNone:
		return ActionCheckIn, nil
	case attendance.StateCheckedIn, attendance.StateCheckedOut:
		return ActionCheckOut, nil
	}
	panic(fmt.Sprintf("engine: unknown attendance state %q", state))
}
