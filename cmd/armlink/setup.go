package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/armlink/pkg/robot"
	"github.com/gwillem/armlink/pkg/transport"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

const (
	roleBase    = "base"
	roleForearm = "forearm"
	roleSkip    = "skip"
)

type SetupCommand struct {
	ScanBus bool `long:"scan-bus" description:"Scan Feetech servo buses and store their IDs as calibration"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("armlink setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━"))
	fmt.Println()

	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("Make sure the controllers are connected, or use 'armlink run --sim'.")
		os.Exit(1)
	}
	fmt.Printf("Found %d port(s).\n\n", len(ports))

	if robot.ConfigExists(configPath()) && !confirm(fmt.Sprintf("Overwrite %s?", configPath())) {
		return nil
	}

	cfg := &robot.Config{}
	for _, port := range ports {
		role, driver, ok := askRole(port, cfg.Base.Port == "", cfg.Forearm.Port == "")
		if !ok {
			continue
		}
		arm := armFor(cfg, role)
		arm.Port = port.Name
		arm.Driver = driver

		if driver == robot.DriverFeetech {
			cal, err := calibrationFor(arm.Port, c.ScanBus)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  Error scanning %s: %v\n", arm.Port, err)
				arm.Driver = ""
				arm.Port = ""
				continue
			}
			arm.Calibration = cal
		}

		if cfg.Base.Port != "" && cfg.Forearm.Port != "" {
			break
		}
	}

	fmt.Println()
	if cfg.Base.Port == "" || cfg.Forearm.Port == "" {
		fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━"))
		if cfg.Base.Port == "" {
			fmt.Println("Base arm not assigned.")
		}
		if cfg.Forearm.Port == "" {
			fmt.Println("Forearm arm not assigned.")
		}
		fmt.Println()
		fmt.Println("Both arms are required.")
		os.Exit(1)
	}

	if err := cfg.SaveTo(configPath()); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Arms assigned:"))
	fmt.Printf("  Base:    %s (%s)\n", cfg.Base.Port, cfg.Base.DriverOrDefault())
	fmt.Printf("  Forearm: %s (%s)\n", cfg.Forearm.Port, cfg.Forearm.DriverOrDefault())
	fmt.Printf("Configuration saved to %s\n", configPath())
	fmt.Println()
	fmt.Println("Play a program with: " + headerStyle.Render("armlink run program.json"))

	return nil
}

func armFor(cfg *robot.Config, role string) *robot.ArmConfig {
	if role == roleForearm {
		return &cfg.Forearm
	}
	return &cfg.Base
}

// askRole asks which arm sits on port and how it is driven.
func askRole(port transport.PortInfo, needBase, needForearm bool) (string, robot.Driver, bool) {
	var options []huh.Option[string]
	if needBase {
		options = append(options, huh.NewOption("Base", roleBase))
	}
	if needForearm {
		options = append(options, huh.NewOption("Forearm", roleForearm))
	}
	options = append(options, huh.NewOption("Skip this port", roleSkip))

	var role string
	driver := string(robot.DriverSerial)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Which arm is on %s?", port)).
				Options(options...).
				Value(&role),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How is it driven?").
				Options(
					huh.NewOption("Controller firmware (line protocol)", string(robot.DriverSerial)),
					huh.NewOption("Feetech servo bus on this host", string(robot.DriverFeetech)),
				).
				Value(&driver),
		).WithHideFunc(func() bool { return role == roleSkip }),
	)

	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	if role == roleSkip {
		return "", "", false
	}
	return role, robot.Driver(driver), true
}

func confirm(title string) bool {
	ok := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return ok
}

// calibrationFor returns the default calibration, with servo IDs taken from
// the bus when scan is set.
func calibrationFor(port string, scan bool) (robot.Calibration, error) {
	if !scan {
		return robot.DefaultCalibration(), nil
	}

	servos, err := scanBus(port)
	if err != nil {
		return nil, err
	}
	fmt.Println(renderServos(servos))

	ids := make([]int, 0, len(servos))
	for _, s := range servos {
		ids = append(ids, s.ID)
	}
	return calibrationFromIDs(ids)
}

func scanBus(port string) ([]feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	return bus.Scan(ctx, 1, robot.JointCount+1)
}

// calibrationFromIDs assigns the lowest found IDs to the joints in wire order.
func calibrationFromIDs(ids []int) (robot.Calibration, error) {
	if len(ids) < robot.JointCount {
		return nil, fmt.Errorf("found %d servos, need %d", len(ids), robot.JointCount)
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	cal := robot.DefaultCalibration()
	for i, name := range robot.AllJoints() {
		jc := cal[name]
		jc.ID = sorted[i]
		cal[name] = jc
	}
	return cal, nil
}

func renderServos(servos []feetech.FoundServo) string {
	rows := make([][]string, 0, len(servos))
	for _, s := range servos {
		rows = append(rows, []string{fmt.Sprint(s.ID), fmt.Sprint(s.Model)})
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "Model").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return subHeaderStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Render()
}
