package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/magarm/internal/metrics"
	"github.com/gwillem/magarm/pkg/robot"
	"github.com/gwillem/magarm/pkg/sequence"
	"github.com/gwillem/magarm/pkg/teleop"
)

type TeleoperateCommand struct {
	ArmPort     string        `long:"arm-port" description:"Arm port (default from config)"`
	InputPort   string        `long:"input-port" description:"Input device port (default from config)"`
	Delay       time.Duration `long:"delay" description:"Pause between playback steps (default from config, 600ms)"`
	LogFile     string        `long:"log-file" default:"magarm.log" description:"Log file (the TUI owns the terminal)"`
	MetricsAddr string        `long:"metrics-addr" description:"Serve Prometheus metrics on this address, e.g. :9100"`
}

const (
	headerHeight = 2  // title + blank line
	poseHeight   = 2  // motor values + blank
	footerHeight = 7  // log box height
	helpHeight   = 2  // key help
	maxLogs      = 5  // number of log messages to show
	borderSize   = 2  // chart border
	listWidth    = 36 // sequence panel
	maxListRows  = 12

	motorStep    = 8
	motorBigStep = 64
)

// Motor colors - distinct colors for each motor
var motorColors = map[robot.MotorName]string{
	robot.Motor1: "196", // red
	robot.Motor2: "208", // orange
	robot.Motor3: "46",  // green
	robot.Motor4: "51",  // cyan
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	onStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	offStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

type teleopModel struct {
	ctx      context.Context // cancelled when the program exits; bounds playback
	ctrl     *teleop.Controller
	player   *sequence.Player
	store    *sequence.Store
	chart    *streamlinechart.Model
	armCfg   robot.LinkConfig
	inputCfg robot.LinkConfig
	seqFile  string
	delay    time.Duration

	pose     robot.Position // what the user sees; recorded and set as home from here
	motor    int            // selected motor
	selected int            // selected sequence entry
	playing  bool
	width    int // terminal width
	height   int // terminal height
	logs     []string
	quitting bool
	lastPose *robot.Position // previous charted pose, to freeze the chart when idle
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks if the pose changed since it was last charted
func (m *teleopModel) hasMovement(p robot.Position) bool {
	return m.lastPose == nil || *m.lastPose != p
}

// Messages from the controller and player
type eventMsg robot.Event
type logMsg string
type runDoneMsg struct{}

func waitForEvent(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ctrl.Events())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func waitForRun(run *sequence.Run) tea.Cmd {
	return func() tea.Msg {
		run.Wait() // outcome is reported through the controller's log
		return runDoneMsg{}
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 60, 16 // default size before we know terminal size
	}
	width = m.width - listWidth - borderSize - 2
	if width < 30 {
		width = 30
	}
	height = m.height - headerHeight - poseHeight - footerHeight - helpHeight - borderSize
	if height < 8 {
		height = 8
	}
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialTeleopModel(ctx context.Context, ctrl *teleop.Controller, player *sequence.Player, store *sequence.Store, cfg *robot.Config) teleopModel {
	chart := streamlinechart.New(60, 16,
		streamlinechart.WithYRange(robot.MotorMin, robot.MotorMax),
	)

	// Set up data set styles for each motor
	for _, name := range robot.AllMotors() {
		color := motorColors[name]
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return teleopModel{
		ctx:      ctx,
		ctrl:     ctrl,
		player:   player,
		store:    store,
		chart:    &chart,
		armCfg:   cfg.Arm,
		inputCfg: cfg.Input,
		seqFile:  cfg.SequenceFile,
		delay:    cfg.Playback.Delay,
		pose:     ctrl.Pose(),
	}
}

func (m teleopModel) Init() tea.Cmd {
	// Start listening for pose and log updates
	return tea.Batch(
		waitForEvent(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		// Every source just updates the display. Only key presses send,
		// so telemetry and playback updates never echo back to the arm.
		ev := robot.Event(msg)
		m.pose = ev.Pose
		if m.hasMovement(ev.Pose) {
			for i, name := range robot.AllMotors() {
				m.chart.PushDataSet(string(name), float64(ev.Pose.Motors[i]))
			}
			m.chart.DrawAll()
			p := ev.Pose
			m.lastPose = &p
		}
		return m, waitForEvent(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case runDoneMsg:
		m.playing = false
		return m, nil
	}

	return m, nil
}

func (m teleopModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "s", "esc":
		m.report(m.ctrl.Stop())
	case "h":
		m.report(m.ctrl.GoHome())
	case "H":
		m.ctrl.SetHome(m.pose)
	case "t":
		m.ctrl.SetTeleop(!m.ctrl.Teleop())
		m.ctrl.Notify("Teleop %s.", onOff(m.ctrl.Teleop()))
	case "L":
		m.ctrl.SetLive(!m.ctrl.Live())
		m.ctrl.Notify("Live send %s.", onOff(m.ctrl.Live()))

	case "m":
		m.pose.Magnet = !m.pose.Magnet
		m.report(m.ctrl.SendPose(m.pose))
	case "1", "2", "3", "4":
		m.motor = int(key[0] - '1')
	case "left", "right", "shift+left", "shift+right":
		delta := motorStep
		if strings.HasPrefix(key, "shift+") {
			delta = motorBigStep
		}
		if strings.HasSuffix(key, "left") {
			delta = -delta
		}
		motors := m.pose.Motors
		motors[m.motor] += delta
		m.pose = m.pose.WithMotors(motors)
		m.report(m.ctrl.SetPose(m.pose))

	case "up":
		m.selected = max(m.selected-1, 0)
	case "down":
		m.selected = min(m.selected+1, max(m.store.Len()-1, 0))
	case "r":
		m.selected = m.store.Record(m.pose)
		m.ctrl.Notify("Position recorded.")
	case "x", "delete":
		if err := m.store.Delete(m.selected); err != nil {
			m.ctrl.Notify("Select a position to delete.")
			break
		}
		m.selected = min(m.selected, max(m.store.Len()-1, 0))
		m.ctrl.Notify("Position deleted.")

	case "p":
		return m.play()
	case "w":
		path, err := m.store.Save(m.seqFile)
		switch {
		case errors.Is(err, sequence.ErrEmptySequence):
			m.ctrl.Notify("No positions to save.")
		case err != nil:
			m.ctrl.Notify("Could not save: %v", err)
		default:
			m.ctrl.Notify("Saved: %s", path)
		}
	case "o":
		if err := m.store.Load(m.seqFile); err != nil {
			m.ctrl.Notify("Could not load: %v", err)
			break
		}
		m.selected = 0
		m.ctrl.Notify("Loaded: %s", m.seqFile)

	case "c":
		if m.ctrl.ArmConnected() {
			m.report(m.ctrl.DisconnectArm())
		} else {
			m.ctrl.ConnectArm(m.armCfg)
		}
	case "i":
		if m.ctrl.InputConnected() {
			m.report(m.ctrl.DisconnectInput())
		} else {
			m.ctrl.ConnectInput(m.inputCfg)
		}
	}
	return m, nil
}

func (m teleopModel) play() (tea.Model, tea.Cmd) {
	run, err := m.player.Start(m.ctx, m.store.Positions(), m.delay)
	switch {
	case errors.Is(err, sequence.ErrAlreadyRunning):
		m.ctrl.Notify("Already running.")
		return m, nil
	case errors.Is(err, sequence.ErrEmptySequence):
		m.ctrl.Notify("No saved positions.")
		return m, nil
	case err != nil:
		m.ctrl.Notify("Could not start playback: %v", err)
		return m, nil
	}
	m.playing = true
	m.ctrl.Notify("Playing %d position(s), run %s.", run.Steps, run.ID[:8])
	return m, waitForRun(run)
}

// report surfaces an operation error in the log box.
func (m *teleopModel) report(err error) {
	if err != nil {
		m.addLog(fmt.Sprintf("[%s] Error: %v", time.Now().Format("15:04:05"), err))
	}
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("magarm"))
	sb.WriteString("  teleop " + flagView(m.ctrl.Teleop()))
	sb.WriteString("  live " + flagView(m.ctrl.Live()))
	sb.WriteString("  magnet " + flagView(m.pose.Magnet))
	if m.playing {
		sb.WriteString("  " + onStyle.Render("PLAYING"))
	}
	sb.WriteString(statusStyle.Render("  " + m.ctrl.LinkStatus()))
	sb.WriteString("\n\n")

	// Chart and sequence side by side
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		chartStyle.Render(m.chart.View()),
		m.renderSequence(),
	))
	sb.WriteString("\n")

	// Motor values
	sb.WriteString(m.renderPose())
	sb.WriteString("\n\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 40))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	sb.WriteString(statusStyle.Render(
		"t teleop · h home · H set home · s stop · ←/→ move · 1-4 motor · m magnet · L live\n" +
			"r record · x delete · ↑/↓ select · p play · w save · o load · c arm · i input · q quit"))
	return sb.String()
}

func (m teleopModel) renderPose() string {
	var items []string
	for i, name := range robot.AllMotors() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[name])).Bold(true)
		label := fmt.Sprintf("M%d %4d", i+1, m.pose.Motors[i])
		if i == m.motor {
			label = "[" + label + "]"
		}
		items = append(items, colorStyle.Render("━━")+" "+label)
	}
	return strings.Join(items, "  ")
}

func (m teleopModel) renderSequence() string {
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(listWidth - borderSize).
		Padding(0, 1)

	positions := m.store.Positions()
	if len(positions) == 0 {
		return panel.Render(statusStyle.Render("No saved positions\n'r' records one"))
	}

	// Scroll so the selection stays visible
	start := 0
	if m.selected >= maxListRows {
		start = m.selected - maxListRows + 1
	}
	end := min(start+maxListRows, len(positions))

	lines := []string{statusStyle.Render(fmt.Sprintf("Saved positions (%d)", len(positions)))}
	for i := start; i < end; i++ {
		line := fmt.Sprintf("%2d %s", i+1, positions[i])
		if i == m.selected {
			line = selectedStyle.Render("›" + line)
		} else {
			line = " " + line
		}
		lines = append(lines, line)
	}
	return panel.Render(strings.Join(lines, "\n"))
}

func flagView(on bool) string {
	if on {
		return onStyle.Render("ON")
	}
	return offStyle.Render("OFF")
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func (c *TeleoperateCommand) Execute(args []string) error {
	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.ArmPort != "" {
		cfg.Arm.Port = c.ArmPort
	}
	if c.InputPort != "" {
		cfg.Input.Port = c.InputPort
	}
	if c.Delay != 0 {
		cfg.Playback.Delay = c.Delay
	}

	logFile, err := setupFileLogging(c.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logFile.Close()

	m := metrics.New()
	home := cfg.Home
	ctrl := teleop.NewController(teleop.Config{Home: &home, Metrics: m})
	defer ctrl.Close()

	// Connection failures are reported in the TUI; 'c' and 'i' retry.
	if cfg.Arm.Port != "" {
		ctrl.ConnectArm(cfg.Arm)
	}
	if cfg.Input.Port != "" {
		ctrl.ConnectInput(cfg.Input)
	}

	store := sequence.NewStore()
	if _, err := os.Stat(cfg.SequenceFile); err == nil {
		if err := store.Load(cfg.SequenceFile); err != nil {
			ctrl.Notify("Could not load: %v", err)
		}
	}

	if c.MetricsAddr != "" {
		go serveMetrics(c.MetricsAddr, m)
	}

	// Playback is only cancelled when the program exits
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	player := sequence.NewPlayer(ctrl, m)

	// Run TUI
	p := tea.NewProgram(initialTeleopModel(ctx, ctrl, player, store, cfg), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	slog.Info("serving metrics", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server", slog.Any("error", err))
	}
}
