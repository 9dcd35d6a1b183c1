package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gwillem/armlink/pkg/dual"
	"github.com/gwillem/armlink/pkg/firmware"
	"github.com/gwillem/armlink/pkg/robot"
	"github.com/gwillem/armlink/pkg/transport"
)

const (
	// simSpeed is the joint speed of simulated arms, in degrees per second.
	simSpeed = 90
	// feetechTimeout bounds each servo bus transaction.
	feetechTimeout = 250 * time.Millisecond
)

func configPath() string {
	if opts.Config == "" {
		return robot.DefaultConfigFile
	}
	return opts.Config
}

// loadConfig reads the configuration named by --config.
func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(configPath())
	if err != nil {
		return nil, fmt.Errorf("load %s (run 'armlink setup' first): %w", configPath(), err)
	}
	return cfg, nil
}

// openTransport connects to one arm with its configured driver.
func openTransport(ctx context.Context, cfg robot.ArmConfig, sim bool) (robot.Transport, error) {
	driver := cfg.DriverOrDefault()
	if sim {
		driver = robot.DriverSim
	}

	switch driver {
	case robot.DriverSerial:
		s, err := transport.OpenSerial(ctx, transport.SerialConfig{
			Port:     cfg.Port,
			BaudRate: cfg.BaudRateOrDefault(),
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case robot.DriverFeetech:
		act, err := firmware.OpenFeetech(cfg.Port, cfg.Calibration)
		if err != nil {
			return nil, err
		}
		return firmware.NewEmulator(act, firmware.WithActuatorTimeout(feetechTimeout)), nil
	case robot.DriverSim:
		return firmware.NewEmulator(firmware.NewSimActuator(simSpeed)), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

// openController connects both arms.
func openController(ctx context.Context, cfg *robot.Config, sim bool, logger *slog.Logger, metrics *robot.Metrics) (*dual.Controller, error) {
	if !sim {
		if err := cfg.Base.Validate(); err != nil {
			return nil, fmt.Errorf("base: %w", err)
		}
		if err := cfg.Forearm.Validate(); err != nil {
			return nil, fmt.Errorf("forearm: %w", err)
		}
	}

	armOpts := []robot.Option{robot.WithLogger(logger), robot.WithMetrics(metrics)}

	bt, err := openTransport(ctx, cfg.Base, sim)
	if err != nil {
		return nil, fmt.Errorf("open base: %w", err)
	}
	base := robot.NewArm("base", bt, armOpts...)

	ft, err := openTransport(ctx, cfg.Forearm, sim)
	if err != nil {
		base.Close()
		return nil, fmt.Errorf("open forearm: %w", err)
	}
	forearm := robot.NewArm("forearm", ft, armOpts...)

	return dual.New(base, forearm), nil
}
