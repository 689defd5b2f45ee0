package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gwillem/magarm/internal/metrics"
	"github.com/gwillem/magarm/pkg/robot"
)

// ErrAlreadyRunning is returned by Start while a playback is in progress.
var ErrAlreadyRunning = errors.New("playback already running")

// State is the player's state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	default:
		return "Idle"
	}
}

// Target is what a playback drives: normally a *teleop.Controller.
type Target interface {
	SendPose(p robot.Position) error
	Publish(ev robot.Event)
	Notify(format string, args ...any)
}

// Player replays recorded poses to the arm, one run at a time.
type Player struct {
	target  Target
	metrics *metrics.Metrics

	mu    sync.Mutex
	state State
}

// Run is a single playback started by Player.Start.
type Run struct {
	ID    string
	Steps int

	done chan struct{}
	err  error
}

// Done is closed once the run has finished and the player is idle again.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err returns the reason the run stopped early, or nil. Only valid after Done.
func (r *Run) Err() error {
	return r.err
}

// Wait blocks until the run finishes and returns its error.
func (r *Run) Wait() error {
	<-r.done
	return r.err
}

// NewPlayer creates an idle player. Nil metrics means a private registry.
func NewPlayer(target Target, m *metrics.Metrics) *Player {
	if m == nil {
		m = metrics.New()
	}
	return &Player{target: target, metrics: m}
}

// State returns the current state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start begins playing seq, pausing delay after every step (negative
// delays count as zero). The sequence is copied, so later changes to the
// caller's slice do not affect the run. Cancelling ctx aborts the run
// before its next step; a context that is never cancelled plays to the end.
func (p *Player) Start(ctx context.Context, seq []robot.Position, delay time.Duration) (*Run, error) {
	if len(seq) == 0 {
		return nil, ErrEmptySequence
	}

	p.mu.Lock()
	if p.state == StateRunning {
		p.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	p.state = StateRunning
	p.mu.Unlock()

	run := &Run{
		ID:    uuid.NewString(),
		Steps: len(seq),
		done:  make(chan struct{}),
	}
	go p.play(ctx, run, slices.Clone(seq), max(delay, 0))
	return run, nil
}

func (p *Player) play(ctx context.Context, run *Run, seq []robot.Position, delay time.Duration) {
	log := slog.With(slog.String("run", run.ID))
	log.Info("playback started", slog.Int("steps", len(seq)), slog.Duration("delay", delay))

	run.err = p.steps(ctx, seq, delay)

	outcome := metrics.OutcomeCompleted
	switch {
	case run.err == nil:
		log.Info("playback finished")
		p.target.Notify("Sequence finished.")
	case errors.Is(run.err, context.Canceled), errors.Is(run.err, context.DeadlineExceeded):
		outcome = metrics.OutcomeCancelled
		log.Info("playback cancelled", slog.Any("error", run.err))
		p.target.Notify("Sequence cancelled.")
	default:
		outcome = metrics.OutcomeFailed
		log.Error("playback failed", slog.Any("error", run.err))
		p.target.Notify("Error during playback: %v", run.err)
	}
	p.metrics.PlaybackRuns.WithLabelValues(outcome).Inc()

	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()
	close(run.done)
}

func (p *Player) steps(ctx context.Context, seq []robot.Position, delay time.Duration) error {
	for i, pose := range seq {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.target.Publish(robot.Event{Pose: pose, Source: robot.SourcePlayback})
		if err := p.target.SendPose(pose); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		p.metrics.PlaybackSteps.Inc()

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}
