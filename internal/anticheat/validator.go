// Package anticheat screens claimed-location submissions before they reach the
// attendance lifecycle.
package anticheat

import (
	"context"
	"log/slog"
	"time"

	"attendance-backend/internal/geofence"
	"attendance-backend/internal/verdict"
)

// Submission is a claimed location sent by a participant.
type Submission struct {
	ParticipantID int64
	Coordinate    geofence.Coordinate
	SentAt        time.Time
	// Forwarded is set when the location was relayed from another message rather than sent first hand.
	Forwarded bool
	// Live is set for continuously updating locations.
	Live bool
}

// Result is the outcome of Validate. Code is verdict.OK when the submission passed.
type Result struct {
	OK      bool
	Code    verdict.Code
	Message string
	Live    bool
}

// Config holds the anti-cheat thresholds.
type Config struct {
	MaxAge      time.Duration
	ClockSkew   time.Duration
	MaxAttempts int
	Window      time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxAge:      60 * time.Second,
		ClockSkew:   5 * time.Second,
		MaxAttempts: 3,
		Window:      60 * time.Second,
	}
}

// OriginGuard rejects forwarded locations.
func OriginGuard() verdict.Guard[Submission] {
	return verdict.Guard[Submission]{
		Name: "origin",
		Check: func(_ context.Context, s Submission) verdict.Verdict {
			if s.Forwarded {
				return verdict.Deny(verdict.Forwarded, "forwarded locations are not accepted, send your own location")
			}
			return verdict.Allow()
		},
	}
}

// FreshnessGuard rejects locations sent too far in the future or older than maxAge.
func FreshnessGuard(maxAge, skew time.Duration, now func() time.Time) verdict.Guard[Submission] {
	return verdict.Guard[Submission]{
		Name: "freshness",
		Check: func(_ context.Context, s Submission) verdict.Verdict {
			age := now().Sub(s.SentAt)
			if age < -skew {
				return verdict.Deny(verdict.Future, "location timestamp is %s in the future", (-age).Round(time.Second))
			}
			if age > maxAge {
				return verdict.Deny(verdict.Stale, "location is %s old, the limit is %s", age.Round(time.Second), maxAge)
			}
			return verdict.Allow()
		},
	}
}

// RateLimitGuard admits at most limit submissions per participant within the
// store's window. Only admitted submissions are recorded.
func RateLimitGuard(store WindowStore, limit int, now func() time.Time) verdict.Guard[Submission] {
	return verdict.Guard[Submission]{
		Name: "rate",
		Check: func(_ context.Context, s Submission) verdict.Verdict {
			if ok, seen := store.Admit(s.ParticipantID, now(), limit); !ok {
				return verdict.Deny(verdict.RateLimited, "too many submissions (%d in the current window), try again later", seen)
			}
			return verdict.Allow()
		},
	}
}

// Validator runs the anti-cheat chain: origin, freshness, rate.
type Validator struct {
	chain  verdict.Chain[Submission]
	logger *slog.Logger
}

// NewValidator builds a validator over the given window store. A nil now uses time.Now.
func NewValidator(cfg Config, store WindowStore, logger *slog.Logger, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{
		chain: verdict.Chain[Submission]{
			OriginGuard(),
			FreshnessGuard(cfg.MaxAge, cfg.ClockSkew, now),
			RateLimitGuard(store, cfg.MaxAttempts, now),
		},
		logger: logger,
	}
}

// With returns a validator running guards after its own. The rate window
// still counts submissions that a later guard rejects.
func (v *Validator) With(guards ...verdict.Guard[Submission]) *Validator {
	return &Validator{chain: v.chain.Then(guards...), logger: v.logger}
}

// Validate evaluates s and logs the attempt. Live locations are flagged but never rejected.
func (v *Validator) Validate(ctx context.Context, s Submission) Result {
	vd, guard := v.chain.Run(ctx, s)
	res := Result{OK: vd.Allowed, Code: vd.Code, Message: vd.Message, Live: s.Live}

	attrs := []any{
		slog.Int64("participant_id", s.ParticipantID),
		slog.Float64("latitude", s.Coordinate.Latitude),
		slog.Float64("longitude", s.Coordinate.Longitude),
		slog.Bool("live", s.Live),
	}
	if !res.OK {
		v.logger.WarnContext(ctx, "location rejected", append(attrs,
			slog.String("guard", guard),
			slog.String("code", string(res.Code)),
			slog.String("reason", res.Message))...)
		return res
	}
	if s.Live {
		v.logger.InfoContext(ctx, "live location accepted", attrs...)
		return res
	}
	v.logger.InfoContext(ctx, "location accepted", attrs...)
	return res
}
