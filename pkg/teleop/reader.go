package teleop

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gwillem/magarm/internal/metrics"
	"github.com/gwillem/magarm/pkg/robot"
)

// LineReader is the receive side of a link.
type LineReader interface {
	Name() string
	Connected() bool
	ReadLine() (string, bool)
}

// Reader turns POT lines from the input device into pose updates and,
// while teleop is on, mirrors them onto the arm.
type Reader struct {
	link LineReader
	ctrl *Controller
}

// NewReader creates a reader for link that reports to ctrl.
func NewReader(link LineReader, ctrl *Controller) *Reader {
	return &Reader{link: link, ctrl: ctrl}
}

// Run reads until ctx is cancelled or the link disconnects. Both are
// checked once per iteration, so it returns within one read timeout.
func (r *Reader) Run(ctx context.Context) {
	slog.Info("telemetry reader started", slog.String("link", r.link.Name()))
	defer slog.Info("telemetry reader stopped", slog.String("link", r.link.Name()))

	for ctx.Err() == nil && r.link.Connected() {
		line, ok := r.link.ReadLine()
		if !ok {
			continue
		}
		r.handle(line)
	}
}

// handle processes one line. Malformed lines are discarded without a
// pose update or transmission.
func (r *Reader) handle(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t, err := robot.ParseTelemetry(line)
	if err != nil {
		r.ctrl.metrics.TelemetryLines.WithLabelValues(metrics.ResultDiscarded).Inc()
		slog.Debug("discarding telemetry", slog.Any("error", err))
		return
	}
	r.ctrl.metrics.TelemetryLines.WithLabelValues(metrics.ResultAccepted).Inc()

	pose := r.ctrl.Pose().WithMotors(t)
	r.ctrl.Publish(robot.Event{Pose: pose, Source: robot.SourceTelemetry})

	if !r.ctrl.Teleop() {
		return
	}
	if err := r.ctrl.SendPose(pose); err != nil {
		slog.Warn("mirroring telemetry", slog.Any("error", err))
		return
	}
	r.ctrl.metrics.MirroredPoses.Inc()
}
