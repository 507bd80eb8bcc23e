package loop

import (
	"log/slog"
	"time"

	"github.com/lumeaudio/segue/internal/domain"
	"github.com/lumeaudio/segue/internal/ports"
)

// beginHandoffLocked runs the buffer handoff: the alternate buffer starts
// silently at the target offset, an equal-power crossfade swaps the two, and
// after the crossfade plus a small pad the outgoing buffer stops, the active
// flag flips, and the track's public handle is rebound. The continuation
// runs with the lock held once the handoff has fully completed.
//
// This is the single code path for segment-internal loop-backs and for
// segment-to-segment skips; only the target offset differs.
func (l *Looper) beginHandoffLocked(offset, crossfade time.Duration, then func()) error {
	if l.destroyed {
		return domain.ErrLooperDestroyed
	}
	active := l.activeLocked()
	if active == nil {
		return domain.ErrSoundUnavailable
	}

	target, err := l.prepareTargetLocked()
	if err != nil {
		return err
	}

	l.crossfading = true
	if err := target.Play(offset, 0); err != nil {
		l.crossfading = false
		return domain.NewSoundError("handoff", l.track.ID(), err)
	}

	l.cancelTimerLocked(&l.stallTimer)
	l.stallTimer = l.fader.Crossfade(active, target, l.track.Volume(), crossfade)

	l.handoffTimer = l.clock.AfterFunc(crossfade+l.opts.HandoffBuffer, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.handoffTimer = nil

		if l.destroyed {
			if !target.Stopped() {
				_ = target.Stop()
			}
			l.crossfading = false
			return
		}

		if !active.Stopped() {
			_ = active.Stop()
		}
		l.activeIsA = !l.activeIsA
		l.track.BindSound(target)
		l.crossfading = false
		l.logger.Debug("handoff complete", slog.Duration("offset", offset))
		then()
	})
	return nil
}

// prepareTargetLocked returns the alternate buffer, creating or reloading it
// when missing or previously unloaded by the engine. The handle is reused
// across iterations; reload is costly for long or streaming audio.
func (l *Looper) prepareTargetLocked() (ports.Sound, error) {
	target := l.inactiveLocked()
	if target != nil && !target.Stopped() {
		return target, nil
	}

	sound, err := l.source.NewSound(l.track)
	if err != nil {
		return nil, err
	}
	if l.activeIsA {
		l.soundB = sound
	} else {
		l.soundA = sound
	}
	return sound, nil
}
