package moderation

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/notify"
	"github.com/discord-voice-mod/internal/volume"
)

// Engine owns the map of active overrides. All mutations go through its
// mutex: the event-processing path and restore timers are the only writers.
type Engine struct {
	policy     *Policy
	controller volume.Controller
	relay      notify.Relay
	settings   config.Source

	mu        sync.Mutex
	overrides map[string]*Override

	// newTimer schedules the one-shot restore; replaceable in tests.
	newTimer func(d time.Duration, f func()) *time.Timer
}

func NewEngine(policy *Policy, controller volume.Controller, relay notify.Relay, settings config.Source) *Engine {
	return &Engine{
		policy:     policy,
		controller: controller,
		relay:      relay,
		settings:   settings,
		overrides:  make(map[string]*Override),
		newTimer:   time.AfterFunc,
	}
}

// ApplyIfEligible moderates a user unless an override already exists or the
// exemption policy skips them. A reportable skip emits one notification and
// records nothing. On the happy path exactly one volume write happens, one
// notification fires, and zero or one timer is scheduled.
func (e *Engine) ApplyIfEligible(userID string) {
	e.mu.Lock()
	_, active := e.overrides[userID]
	e.mu.Unlock()
	if active {
		return
	}

	st := e.settings.Snapshot()
	sc := volume.ForCurve(st.VolumeCurve)

	current, err := e.controller.Get(userID)
	if err != nil {
		// Volume control not reachable: moderation is best-effort, degrade
		// to a no-op for this one user.
		logging.Warnw("moderation: volume lookup failed", "user.id", userID, "err", err)
		return
	}

	d := e.policy.Evaluate(userID, current, sc, st)
	if d.Skip {
		if d.Reason != "" {
			logging.Infow("moderation: skipping user", "user.id", userID, "reason", d.Reason)
			e.relay.Emit(notify.Skip, map[string]any{"user_id": userID, "reason": d.Reason})
		}
		return
	}

	target := sc.ToInternal(st.TargetVolume)
	cid := uuid.NewString()
	if err := e.controller.Set(userID, target); err != nil {
		// No override without a successful write; our state must never claim
		// an adjustment that did not happen.
		logging.Warnw("moderation: volume set failed, not tracking", "user.id", userID, "err", err, "correlation_id", cid)
		return
	}

	ov := &Override{
		UserID:         userID,
		OriginalVolume: current,
		TargetVolume:   target,
		CorrelationID:  cid,
	}

	e.mu.Lock()
	if _, raced := e.overrides[userID]; raced {
		e.mu.Unlock()
		return
	}
	if st.DurationSeconds > 0 {
		ov.timer = e.newTimer(time.Duration(st.DurationSeconds)*time.Second, func() {
			e.Release(userID, ReasonRestore)
		})
	}
	e.overrides[userID] = ov
	e.mu.Unlock()

	logging.Infow("moderation: applied", logging.OverrideFields(userID, current, target, cid)...)
	e.relay.Emit(notify.Moderate, map[string]any{
		"user_id":    userID,
		"old_volume": int(math.Round(sc.ToDisplay(current))),
		"new_volume": int(math.Round(st.TargetVolume)),
		"duration":   st.DurationSeconds,
	})
}

// Release ends the override for a user. Without an active override it is a
// no-op, which makes a late-firing timer harmless. The record (and its
// timer) is removed before any side effect so the volume-change echo of a
// restore can never be mistaken for a manual change.
func (e *Engine) Release(userID string, reason Reason) {
	e.mu.Lock()
	ov, ok := e.overrides[userID]
	if !ok {
		e.mu.Unlock()
		return
	}
	if ov.timer != nil {
		ov.timer.Stop()
	}
	delete(e.overrides, userID)
	e.mu.Unlock()

	switch reason {
	case ReasonRestore:
		st := e.settings.Snapshot()
		sc := volume.ForCurve(st.VolumeCurve)
		display := int(math.Round(sc.ToDisplay(ov.OriginalVolume)))
		logging.Infow("moderation: restoring volume", logging.OverrideFields(userID, ov.OriginalVolume, ov.TargetVolume, ov.CorrelationID)...)
		e.relay.Emit(notify.End, map[string]any{
			"user_id": userID,
			"reason":  fmt.Sprintf("Volume restored to %d%%", display),
		})
		if err := e.controller.Set(userID, ov.OriginalVolume); err != nil {
			logging.Warnw("moderation: restore write failed", "user.id", userID, "err", err, "correlation_id", ov.CorrelationID)
		}
	case ReasonManual:
		logging.Infow("moderation: manual volume change, cancelling", "user.id", userID, "correlation_id", ov.CorrelationID)
		e.relay.Emit(notify.End, map[string]any{"user_id": userID, "reason": "Manual volume change"})
	case ReasonLeft:
		logging.Infow("moderation: user left, cancelling", "user.id", userID, "correlation_id", ov.CorrelationID)
		e.relay.Emit(notify.End, map[string]any{"user_id": userID, "reason": "User left"})
	default:
		// stop: bulk teardown, tracking ends without restoring or notifying.
		logging.Infow("moderation: stopped tracking", "user.id", userID, "correlation_id", ov.CorrelationID)
	}
}

// ReleaseAll releases every active override with the same reason. Used on
// global disable and on shutdown; returns only after every timer has been
// cancelled and every record removed.
func (e *Engine) ReleaseAll(reason Reason) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.overrides))
	for id := range e.overrides {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	sort.Strings(ids)
	logging.Infow("moderation: releasing all", "count", len(ids), "reason", string(reason))
	for _, id := range ids {
		e.Release(id, reason)
	}
}

// HandleVolumeChange inspects an externally-sourced volume change. A report
// matching the override's target is our own write echoed back and is
// ignored; anything else means someone changed the volume out of band.
func (e *Engine) HandleVolumeChange(userID string, internal float64) {
	e.mu.Lock()
	ov, ok := e.overrides[userID]
	e.mu.Unlock()
	if !ok || internal == ov.TargetVolume {
		return
	}
	logging.Infow("moderation: external volume change detected", "user.id", userID, "volume", internal, "correlation_id", ov.CorrelationID)
	e.Release(userID, ReasonManual)
}

// Active returns a snapshot of current overrides sorted by user ID.
func (e *Engine) Active() []Override {
	e.mu.Lock()
	out := make([]Override, 0, len(e.overrides))
	for _, ov := range e.overrides {
		cp := *ov
		cp.timer = nil
		out = append(out, cp)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
