package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/armlink/pkg/probe"
	"github.com/gwillem/armlink/pkg/protocol"
	"github.com/gwillem/armlink/pkg/robot"
)

type SendCommand struct {
	Timeout time.Duration `long:"timeout" default:"10s" description:"How long to wait for the reply"`
	Sim     bool          `long:"sim" description:"Send to a simulated arm"`

	Args struct {
		Arm     string   `positional-arg-name:"arm" description:"base or forearm"`
		Command string   `positional-arg-name:"command" description:"set-pose, goto or stop"`
		Params  []string `positional-arg-name:"params" description:"Pose id, then angles in radians for set-pose"`
	} `positional-args:"yes" required:"yes"`
}

var (
	sentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	replyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// buildCommand parses the command words and returns the command plus the reply
// token that completes it.
func buildCommand(name string, params []string) (protocol.Command, string, error) {
	switch name {
	case "stop":
		return protocol.Stop{}, "STOPPED", nil
	case "goto", "go-to":
		id, err := poseID(params)
		if err != nil {
			return nil, "", err
		}
		if err := robot.ValidateGoToID(id); err != nil {
			return nil, "", err
		}
		return protocol.GoTo{ID: id}, "COMPLETED", nil
	case "set-pose":
		id, err := poseID(params)
		if err != nil {
			return nil, "", err
		}
		if err := robot.ValidateSetPoseID(id); err != nil {
			return nil, "", err
		}
		if len(params) < 2 {
			return nil, "", fmt.Errorf("set-pose needs at least one angle")
		}
		radians := make([]float64, 0, len(params)-1)
		for _, p := range params[1:] {
			r, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, "", fmt.Errorf("angle %q: %w", p, err)
			}
			radians = append(radians, r)
		}
		return protocol.SetPose{ID: id, Angles: robot.PoseFromRadians(radians)}, "ACCEPTED", nil
	default:
		return nil, "", fmt.Errorf("unknown command %q (want set-pose, goto or stop)", name)
	}
}

func poseID(params []string) (int, error) {
	if len(params) == 0 {
		return 0, fmt.Errorf("missing pose id")
	}
	id, err := strconv.Atoi(params[0])
	if err != nil {
		return 0, fmt.Errorf("pose id %q: %w", params[0], err)
	}
	return id, nil
}

func armConfig(cfg *robot.Config, name string) (robot.ArmConfig, error) {
	switch name {
	case "base":
		return cfg.Base, nil
	case "forearm":
		return cfg.Forearm, nil
	default:
		return robot.ArmConfig{}, fmt.Errorf("unknown arm %q (want base or forearm)", name)
	}
}

func (c *SendCommand) Execute(args []string) error {
	cmd, token, err := buildCommand(c.Args.Command, c.Args.Params)
	if err != nil {
		return err
	}

	cfg := &robot.Config{}
	if !c.Sim {
		if cfg, err = loadConfig(); err != nil {
			return err
		}
	}
	armCfg, err := armConfig(cfg, c.Args.Arm)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	t, err := openTransport(ctx, armCfg, c.Sim)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.Args.Arm, err)
	}
	if closer, ok := t.(io.Closer); ok {
		defer closer.Close()
	}

	session := probe.NewSession(t)
	fmt.Println(sentStyle.Render("> " + cmd.Encode()))
	line, err := session.Exchange(ctx, cmd, token)
	for _, seen := range session.Seen() {
		if seen != line {
			fmt.Println(dimStyle.Render("< " + seen))
		}
	}
	if err != nil {
		return err
	}
	fmt.Println(replyStyle.Render("< " + line))
	return nil
}
