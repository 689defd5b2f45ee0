package teleop

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/magarm/internal/fakeport"
	"github.com/gwillem/magarm/internal/metrics"
	"github.com/gwillem/magarm/pkg/robot"
)

const (
	armPort   = "/dev/ttyARM"
	inputPort = "/dev/ttyINPUT"
)

type rig struct {
	ctrl  *Controller
	arm   *fakeport.Port
	input *fakeport.Port
	m     *metrics.Metrics
}

// newRig returns a controller with the arm connected to a fake port.
func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{arm: fakeport.New(), input: fakeport.New(), m: metrics.New()}
	open := func(cfg robot.LinkConfig) (io.ReadWriteCloser, error) {
		switch cfg.Port {
		case armPort:
			return r.arm, nil
		case inputPort:
			return r.input, nil
		}
		return nil, errors.New("no such device")
	}
	r.ctrl = NewController(Config{Opener: open, Metrics: r.m})
	t.Cleanup(func() { r.ctrl.Close() })

	require.NoError(t, r.ctrl.ConnectArm(robot.LinkConfig{Port: armPort, Baud: robot.DefaultArmBaud}))
	return r
}

func drainEvents(c *Controller) []robot.Event {
	var evs []robot.Event
	for {
		select {
		case ev := <-c.Events():
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func drainLogs(c *Controller) []string {
	var logs []string
	for {
		select {
		case l := <-c.Logs():
			logs = append(logs, l)
		default:
			return logs
		}
	}
}

func TestNewController_Defaults(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, robot.DefaultHome(), c.Home())
	assert.Equal(t, robot.DefaultHome(), c.Pose())
	assert.True(t, c.Live())
	assert.False(t, c.Teleop())
	assert.False(t, c.ArmConnected())
	assert.False(t, c.InputConnected())
	assert.Equal(t, "Arm: disconnected | Input: disconnected", c.LinkStatus())

	home := robot.Position{Motors: [robot.NumMotors]int{2000, 0, 0, 0}}
	c = NewController(Config{Home: &home})
	assert.Equal(t, robot.NewPosition(1023, 0, 0, 0, false), c.Home())
}

func TestController_ConnectArmFailure(t *testing.T) {
	r := newRig(t)
	drainLogs(r.ctrl)

	err := r.ctrl.ConnectArm(robot.LinkConfig{Port: "/dev/missing", Baud: 9600})
	assert.ErrorIs(t, err, robot.ErrConnection)
	assert.False(t, r.ctrl.ArmConnected())

	logs := drainLogs(r.ctrl)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "Could not connect to the arm")
	assert.Contains(t, logs[0], "Arm: disconnected")
}

func TestController_SendPose(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.ctrl.SendPose(robot.Position{Motors: [robot.NumMotors]int{-3, 100, 200, 5000}, Magnet: true}))
	assert.Equal(t, "SET 0 100 200 1023 1\n", r.arm.Written())
	assert.Equal(t, robot.NewPosition(0, 100, 200, 1023, true), r.ctrl.Pose())
}

func TestController_SendPoseWriteErrorKeepsPose(t *testing.T) {
	r := newRig(t)
	r.arm.FailWrites(errors.New("cable pulled"))

	assert.Error(t, r.ctrl.SendPose(robot.NewPosition(1, 2, 3, 4, false)))
	assert.Equal(t, robot.DefaultHome(), r.ctrl.Pose())
}

func TestController_SetPoseLive(t *testing.T) {
	r := newRig(t)
	p := robot.NewPosition(10, 20, 30, 40, false)

	require.NoError(t, r.ctrl.SetPose(p))
	assert.Equal(t, []string{"SET 10 20 30 40 0\n"}, r.arm.Lines())

	evs := drainEvents(r.ctrl)
	require.Len(t, evs, 1)
	assert.Equal(t, robot.SourceUser, evs[0].Source)
	assert.Equal(t, p, evs[0].Pose)
	assert.False(t, evs[0].Timestamp.IsZero())
}

func TestController_SetPoseNotLive(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetLive(false)

	require.NoError(t, r.ctrl.SetPose(robot.NewPosition(10, 20, 30, 40, false)))
	assert.Empty(t, r.arm.Written())
	assert.Equal(t, robot.DefaultHome(), r.ctrl.Pose())
	assert.Len(t, drainEvents(r.ctrl), 1)
}

func TestController_Stop(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetTeleop(true)
	drainLogs(r.ctrl)

	require.NoError(t, r.ctrl.Stop())
	assert.False(t, r.ctrl.Teleop())
	assert.Equal(t, []string{"SET 512 512 512 512 0\n"}, r.arm.Lines())

	evs := drainEvents(r.ctrl)
	require.Len(t, evs, 1)
	assert.Equal(t, robot.SourceHome, evs[0].Source)

	logs := drainLogs(r.ctrl)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "STOP: teleop OFF and HOME sent.")
}

func TestController_SetHomeThenGoHome(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetTeleop(true)
	r.ctrl.SetHome(robot.NewPosition(100, 200, 300, 400, true))
	assert.Empty(t, r.arm.Written(), "setting home transmits nothing")

	require.NoError(t, r.ctrl.GoHome())
	assert.False(t, r.ctrl.Teleop())
	assert.Equal(t, []string{"SET 100 200 300 400 1\n"}, r.arm.Lines())
}

func TestController_HomeWithoutArm(t *testing.T) {
	c := NewController(Config{})
	c.SetTeleop(true)

	require.NoError(t, c.Stop())
	assert.False(t, c.Teleop())
}

func TestController_SendPoseWithoutArmKeepsPose(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.SendPose(robot.NewPosition(1, 2, 3, 4, true)))
	assert.Equal(t, robot.DefaultHome(), c.Pose())

	r := newRig(t)
	require.NoError(t, r.ctrl.DisconnectArm())
	require.NoError(t, r.ctrl.SendPose(robot.NewPosition(1, 2, 3, 4, true)))
	assert.Equal(t, robot.DefaultHome(), r.ctrl.Pose())
	assert.Empty(t, r.arm.Written())
}

func TestController_PublishDropsOldest(t *testing.T) {
	c := NewController(Config{})
	total := eventBuffer + 6
	for i := range total {
		c.Publish(robot.Event{Pose: robot.NewPosition(i, 0, 0, 0, false), Source: robot.SourceTelemetry})
	}

	evs := drainEvents(c)
	require.Len(t, evs, eventBuffer)
	assert.Equal(t, 6, evs[0].Pose.Motors[0])
	assert.Equal(t, total-1, evs[len(evs)-1].Pose.Motors[0])
}

func TestController_TelemetryMirroring(t *testing.T) {
	r := newRig(t)
	r.ctrl.SetTeleop(true)
	require.NoError(t, r.ctrl.ConnectInput(robot.LinkConfig{Port: inputPort, Baud: robot.DefaultInputBaud}))
	assert.True(t, r.ctrl.InputConnected())

	r.input.Feed("POT 10 20 30 40\n")
	require.Eventually(t, func() bool {
		return strings.Contains(r.arm.Written(), "SET 10 20 30 40 0\n")
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, r.ctrl.DisconnectInput())
	assert.False(t, r.ctrl.InputConnected())
	assert.True(t, r.input.Closed())
	assert.Equal(t, 1.0, testutil.ToFloat64(r.m.MirroredPoses))
}

func TestController_Close(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.ctrl.ConnectInput(robot.LinkConfig{Port: inputPort, Baud: robot.DefaultInputBaud}))

	require.NoError(t, r.ctrl.Close())
	assert.True(t, r.arm.Closed())
	assert.True(t, r.input.Closed())
	require.NoError(t, r.ctrl.Close())
}
