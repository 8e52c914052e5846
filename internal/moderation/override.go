// Package moderation implements the volume override state machine: who is
// currently moderated, why a user was skipped, and every path out of an
// active override.
package moderation

import "time"

// Reason describes why an override ends.
type Reason string

const (
	// ReasonRestore is the expiry path: the configured duration elapsed and
	// the original volume is written back.
	ReasonRestore Reason = "restore"

	// ReasonManual means a third party (or the user) changed the volume out
	// of band; the new value is left alone.
	ReasonManual Reason = "manual"

	// ReasonLeft means the user left the operator's channel; the client
	// already dropped the session, so no volume write happens.
	ReasonLeft Reason = "left"

	// ReasonStop is bulk teardown on disable or shutdown. Volumes are not
	// restored, only tracking stops.
	ReasonStop Reason = "stop"
)

// Override is the active volume adjustment record for one user. It is
// immutable once recorded; its existence in the engine map is the single
// source of truth for "this user is currently moderated by us". Volumes are
// internal-scale units.
type Override struct {
	UserID         string
	OriginalVolume float64
	TargetVolume   float64
	CorrelationID  string

	// timer is the scheduled restore, nil when the override never expires.
	timer *time.Timer
}
