package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gwillem/magarm/pkg/robot"
	"github.com/gwillem/magarm/pkg/sequence"
	"github.com/gwillem/magarm/pkg/teleop"
)

type PlayCommand struct {
	Delay time.Duration `long:"delay" description:"Pause between steps (default from config, 600ms)"`
	Port  string        `long:"port" description:"Arm port (default from config)"`
	Args  struct {
		File string `positional-arg-name:"file" description:"Sequence file (.json)"`
	} `positional-args:"yes"`
}

func (c *PlayCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(os.Stderr, cfg.LogLevel)

	if c.Port != "" {
		cfg.Arm.Port = c.Port
	}
	if c.Delay != 0 {
		cfg.Playback.Delay = c.Delay
	}
	file := c.Args.File
	if file == "" {
		file = cfg.SequenceFile
	}

	store := sequence.NewStore()
	if err := store.Load(file); err != nil {
		return err
	}

	home := cfg.Home
	ctrl := teleop.NewController(teleop.Config{Home: &home})
	defer ctrl.Close()
	if err := ctrl.ConnectArm(cfg.Arm); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println(subHeaderStyle.Render(fmt.Sprintf("Playing %d position(s) from %s", store.Len(), file)))

	player := sequence.NewPlayer(ctrl, ctrl.Metrics())
	run, err := player.Start(ctx, store.Positions(), cfg.Playback.Delay)
	if err != nil {
		return err
	}

	step := 0
	show := func(ev robot.Event) {
		if ev.Source == robot.SourcePlayback {
			step++
			fmt.Printf("  %d/%d  %s\n", step, run.Steps, ev.Pose)
		}
	}
	for {
		select {
		case ev := <-ctrl.Events():
			show(ev)
		case <-run.Done():
			for len(ctrl.Events()) > 0 {
				show(<-ctrl.Events())
			}
			if err := run.Err(); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Sequence finished."))
			return nil
		}
	}
}
