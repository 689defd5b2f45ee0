package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/magarm/pkg/robot"
	"github.com/gwillem/magarm/pkg/teleop"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const portNone = "(none)"

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	setupLogging(os.Stderr, "warn")

	fmt.Println(headerStyle.Render("magarm Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ports, err := robot.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("Make sure the arm and the input device are plugged in and powered on.")
		os.Exit(1)
	}
	fmt.Printf("Found %d serial port(s).\n\n", len(ports))

	if err := choosePorts(cfg, ports); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	if cfg.Arm.Port != "" {
		checkArm(cfg)
	}

	if err := cfg.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("  Arm:   %s\n", describeLink(cfg.Arm))
	fmt.Printf("  Input: %s\n", describeLink(cfg.Input))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start teleoperation with: " + headerStyle.Render("magarm teleoperate"))
	return nil
}

// choosePorts asks for the arm and input-device ports and baud rates.
func choosePorts(cfg *robot.Config, ports []string) error {
	options := make([]huh.Option[string], 0, len(ports)+1)
	for _, p := range ports {
		options = append(options, huh.NewOption(p, p))
	}
	options = append(options, huh.NewOption(portNone, ""))

	armBaud := strconv.Itoa(cfg.Arm.Baud)
	inputBaud := strconv.Itoa(cfg.Input.Baud)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Arm port").
				Description("The controller of the real arm (receives SET)").
				Options(options...).
				Value(&cfg.Arm.Port),
			huh.NewInput().
				Title("Arm baud rate").
				Value(&armBaud).
				Validate(validateBaud),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Input device port").
				Description("The mini-arm that sends POT readings").
				Options(options...).
				Value(&cfg.Input.Port),
			huh.NewInput().
				Title("Input device baud rate").
				Value(&inputBaud).
				Validate(validateBaud),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Arm.Baud, _ = strconv.Atoi(armBaud)
	cfg.Input.Baud, _ = strconv.Atoi(inputBaud)
	return nil
}

func validateBaud(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errors.New("enter a positive number")
	}
	return nil
}

// checkArm optionally sends the home pose so the user can see which
// device answered.
func checkArm(cfg *robot.Config) {
	var confirm bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Send HOME (%s) to %s?", cfg.Home, cfg.Arm.Port)).
				Description("The arm should move to its home pose").
				Value(&confirm),
		),
	)
	if err := form.Run(); err != nil || !confirm {
		return
	}

	home := cfg.Home
	ctrl := teleop.NewController(teleop.Config{Home: &home})
	defer ctrl.Close()

	if err := ctrl.ConnectArm(cfg.Arm); err != nil {
		fmt.Fprintf(os.Stderr, "  Error connecting to arm: %v\n", err)
		return
	}
	if err := ctrl.GoHome(); err != nil {
		fmt.Fprintf(os.Stderr, "  Error sending HOME: %v\n", err)
		return
	}
	// Give the controller time to drain its buffer before the port closes.
	time.Sleep(200 * time.Millisecond)
	fmt.Println(successStyle.Render("  HOME sent."))
}

func describeLink(l robot.LinkConfig) string {
	if l.Port == "" {
		return dimStyle.Render("(not set)")
	}
	return fmt.Sprintf("%s @ %d baud", l.Port, l.Baud)
}
