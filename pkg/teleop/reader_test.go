package teleop

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/magarm/internal/metrics"
	"github.com/gwillem/magarm/pkg/robot"
)

// scriptedLink replays lines, then reports no data.
type scriptedLink struct {
	lines     []string
	connected bool
}

func (l *scriptedLink) Name() string    { return "input" }
func (l *scriptedLink) Connected() bool { return l.connected }

func (l *scriptedLink) ReadLine() (string, bool) {
	if len(l.lines) == 0 {
		time.Sleep(time.Millisecond)
		return "", false
	}
	line := l.lines[0]
	l.lines = l.lines[1:]
	return line, true
}

func TestReader_TeleopOffOnlyPublishes(t *testing.T) {
	r := newRig(t)
	NewReader(nil, r.ctrl).handle("POT 100 200 300 400")

	evs := drainEvents(r.ctrl)
	require.Len(t, evs, 1)
	assert.Equal(t, robot.SourceTelemetry, evs[0].Source)
	assert.Equal(t, robot.NewPosition(100, 200, 300, 400, false), evs[0].Pose)
	assert.Empty(t, r.arm.Written())
	assert.Equal(t, 1.0, testutil.ToFloat64(r.m.TelemetryLines.WithLabelValues(metrics.ResultAccepted)))
}

func TestReader_TeleopOnMirrorsWithMagnet(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.ctrl.SendPose(robot.NewPosition(1, 1, 1, 1, true)))
	r.ctrl.SetTeleop(true)

	NewReader(nil, r.ctrl).handle("POT 100 200 300 400\r")

	assert.Equal(t, []string{
		"SET 1 1 1 1 1\n",
		"SET 100 200 300 400 1\n",
	}, r.arm.Lines())
	assert.Equal(t, robot.NewPosition(100, 200, 300, 400, true), r.ctrl.Pose())
	assert.Equal(t, 1.0, testutil.ToFloat64(r.m.MirroredPoses))
}

func TestReader_ClampsTelemetry(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetTeleop(true)

	NewReader(nil, r.ctrl).handle("POT -4 1500 0 1023")
	assert.Equal(t, "SET 0 1023 0 1023 0\n", r.arm.Written())
}

func TestReader_MalformedLinesDiscarded(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetTeleop(true)
	reader := NewReader(nil, r.ctrl)

	for _, line := range []string{"POT 1 2 3", "FOO 1 2 3 4", "POT a b c d", "", "   "} {
		reader.handle(line)
	}

	assert.Empty(t, drainEvents(r.ctrl))
	assert.Empty(t, r.arm.Written())
	assert.Equal(t, 3.0, testutil.ToFloat64(r.m.TelemetryLines.WithLabelValues(metrics.ResultDiscarded)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.m.TelemetryLines.WithLabelValues(metrics.ResultAccepted)))
}

func TestReader_RunStopsOnCancel(t *testing.T) {
	r := newRig(t)
	link := &scriptedLink{lines: []string{"POT 1 2 3 4", "garbage", "POT 5 6 7 8"}, connected: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewReader(link, r.ctrl).Run(ctx)
	}()

	var evs []robot.Event
	require.Eventually(t, func() bool {
		evs = append(evs, drainEvents(r.ctrl)...)
		return len(evs) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, robot.NewPosition(5, 6, 7, 8, false), evs[1].Pose)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
}

func TestReader_RunStopsWhenDisconnected(t *testing.T) {
	r := newRig(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewReader(&scriptedLink{}, r.ctrl).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
}
