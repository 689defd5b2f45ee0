package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"magarm.json" description:"Configuration file"`
	LogLevel string `long:"log-level" description:"Log level (debug, info, warn, error); overrides the config file"`

	Ports       PortsCommand       `command:"ports" description:"List available serial ports"`
	Setup       SetupCommand       `command:"setup" description:"Choose the arm and input-device ports"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Interactive control: teleop, home/stop, record and play sequences"`
	Play        PlayCommand        `command:"play" description:"Play a saved sequence on the arm and exit"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "magarm - control a 4-motor electromagnet arm over serial"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
