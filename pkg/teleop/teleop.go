// Package teleop provides the motion controller that owns the arm and
// input-device links, and the telemetry loop that mirrors the input device
// onto the arm.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gwillem/magarm/internal/metrics"
	"github.com/gwillem/magarm/pkg/robot"
)

const (
	eventBuffer = 64
	logBuffer   = 10
)

// Config holds configuration for the controller.
type Config struct {
	// Home is the initial home pose; nil means robot.DefaultHome().
	Home *robot.Position
	// Opener opens both links; nil means robot.OpenSerial.
	Opener  robot.Opener
	Metrics *metrics.Metrics
}

// Controller owns both serial links, the home pose and the teleop flag.
type Controller struct {
	arm     *robot.Link
	input   *robot.Link
	metrics *metrics.Metrics

	teleop atomic.Bool
	live   atomic.Bool

	mu         sync.RWMutex
	home       robot.Position
	current    robot.Position
	stopReader context.CancelFunc
	readerDone chan struct{}

	events chan robot.Event
	logCh  chan string
}

// NewController creates a controller with both links disconnected.
// Live send starts enabled and teleop disabled.
func NewController(cfg Config) *Controller {
	home := robot.DefaultHome()
	if cfg.Home != nil {
		home = cfg.Home.Clamped()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	c := &Controller{
		arm:     robot.NewLink("arm", cfg.Opener, m),
		input:   robot.NewLink("input", cfg.Opener, m),
		metrics: m,
		home:    home,
		current: home,
		events:  make(chan robot.Event, eventBuffer),
		logCh:   make(chan string, logBuffer),
	}
	c.live.Store(true)
	return c
}

// Events returns a channel that receives pose updates tagged with their source.
func (c *Controller) Events() <-chan robot.Event {
	return c.events
}

// Logs returns a channel that receives status messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Metrics returns the collectors shared by the links, reader and player.
func (c *Controller) Metrics() *metrics.Metrics {
	return c.metrics
}

// ConnectArm opens the arm link, replacing any open handle.
func (c *Controller) ConnectArm(cfg robot.LinkConfig) error {
	if err := c.arm.Connect(cfg); err != nil {
		c.Notify("Could not connect to the arm: %v", err)
		return err
	}
	c.Notify("Arm connected on %s.", cfg.Port)
	return nil
}

// DisconnectArm closes the arm link.
func (c *Controller) DisconnectArm() error {
	err := c.arm.Close()
	c.Notify("Arm disconnected.")
	return err
}

// ConnectInput opens the input-device link and starts the telemetry reader.
func (c *Controller) ConnectInput(cfg robot.LinkConfig) error {
	c.stopTelemetry()
	if err := c.input.Connect(cfg); err != nil {
		c.Notify("Could not connect to the input device: %v", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	reader := NewReader(c.input, c)
	go func() {
		defer close(done)
		reader.Run(ctx)
	}()

	c.mu.Lock()
	c.stopReader = cancel
	c.readerDone = done
	c.mu.Unlock()

	c.Notify("Input device connected on %s.", cfg.Port)
	return nil
}

// DisconnectInput stops the telemetry reader and closes the input link.
func (c *Controller) DisconnectInput() error {
	err := c.stopTelemetry()
	c.Notify("Input device disconnected.")
	return err
}

// stopTelemetry raises the reader's stop signal, closes the input link and
// waits for the reader to return.
func (c *Controller) stopTelemetry() error {
	c.mu.Lock()
	cancel, done := c.stopReader, c.readerDone
	c.stopReader, c.readerDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := c.input.Close()
	if done != nil {
		<-done
	}
	return err
}

// ArmConnected reports whether the arm link is open.
func (c *Controller) ArmConnected() bool {
	return c.arm.Connected()
}

// InputConnected reports whether the input-device link is open.
func (c *Controller) InputConnected() bool {
	return c.input.Connected()
}

// Close stops the reader and releases both links.
func (c *Controller) Close() error {
	var errs []error
	if err := c.stopTelemetry(); err != nil {
		errs = append(errs, err)
	}
	if err := c.arm.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// SendPose transmits a SET line for p over the arm link without waiting
// for any acknowledgement, and records p as the current pose. Without an
// arm connection nothing is sent and the current pose is unchanged.
func (c *Controller) SendPose(p robot.Position) error {
	p = p.Clamped()
	if !c.arm.Connected() {
		return nil
	}
	if err := c.arm.SendLine(p.SetLine()); err != nil {
		return err
	}
	c.mu.Lock()
	c.current = p
	c.mu.Unlock()
	return nil
}

// Pose returns the last pose sent to the arm.
func (c *Controller) Pose() robot.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SetPose applies a user-driven edit: observers see it as a SourceUser
// update and, when live send is on, it is transmitted immediately.
func (c *Controller) SetPose(p robot.Position) error {
	p = p.Clamped()
	c.Publish(robot.Event{Pose: p, Source: robot.SourceUser})
	if !c.live.Load() {
		return nil
	}
	return c.SendPose(p)
}

// SetLive toggles transmitting user edits as they happen.
func (c *Controller) SetLive(enabled bool) {
	c.live.Store(enabled)
}

// Live reports whether user edits are transmitted as they happen.
func (c *Controller) Live() bool {
	return c.live.Load()
}

// Home returns the home pose.
func (c *Controller) Home() robot.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.home
}

// SetHome replaces the home pose. Nothing is transmitted.
func (c *Controller) SetHome(p robot.Position) {
	p = p.Clamped()
	c.mu.Lock()
	c.home = p
	c.mu.Unlock()
	c.Notify("HOME set: %s", p)
}

// SetTeleop toggles mirroring of input-device telemetry onto the arm.
func (c *Controller) SetTeleop(enabled bool) {
	c.teleop.Store(enabled)
	slog.Info("teleop toggled", slog.Bool("enabled", enabled))
}

// Teleop reports whether mirroring is enabled.
func (c *Controller) Teleop() bool {
	return c.teleop.Load()
}

// GoHome disables teleop and sends the home pose.
func (c *Controller) GoHome() error {
	if err := c.sendHome(); err != nil {
		return err
	}
	c.Notify("HOME sent.")
	return nil
}

// Stop is the safe-state operation: teleop off, home pose sent. There is
// no stop command on the wire, so the arm settles no faster than one SET
// line allows. Playback in progress is not cancelled.
func (c *Controller) Stop() error {
	if err := c.sendHome(); err != nil {
		return err
	}
	c.Notify("STOP: teleop OFF and HOME sent.")
	return nil
}

func (c *Controller) sendHome() error {
	c.SetTeleop(false)
	home := c.Home()
	c.Publish(robot.Event{Pose: home, Source: robot.SourceHome})
	if err := c.SendPose(home); err != nil {
		c.Notify("Could not send HOME: %v", err)
		return err
	}
	return nil
}

// Publish hands a pose update to observers. When the buffer is full the
// oldest pending update is dropped.
func (c *Controller) Publish(ev robot.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case c.events <- ev:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- ev:
		default:
		}
	}
}

// Notify sends a status message followed by the link summary.
func (c *Controller) Notify(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	slog.Info(text)
	msg := fmt.Sprintf("[%s] %s  |  %s", time.Now().Format("15:04:05"), text, c.LinkStatus())
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// LinkStatus summarises both links, e.g. "Arm: connected | Input: disconnected".
func (c *Controller) LinkStatus() string {
	return fmt.Sprintf("Arm: %s | Input: %s", linkState(c.arm), linkState(c.input))
}

func linkState(l *robot.Link) string {
	if l.Connected() {
		return "connected"
	}
	return "disconnected"
}
