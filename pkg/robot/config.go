package robot

import (
	"encoding/json"
	"fmt"
	"os"
)

const DefaultConfigFile = "armlink.json"

// DefaultBaudRate is the controller firmware's serial speed.
const DefaultBaudRate = 115200

// Driver selects how an arm is reached.
type Driver string

const (
	// DriverSerial talks the line protocol to controller firmware over a serial port.
	DriverSerial Driver = "serial"
	// DriverFeetech emulates the firmware on the host and drives a Feetech servo bus.
	DriverFeetech Driver = "feetech"
	// DriverSim emulates the firmware with a simulated actuator.
	DriverSim Driver = "sim"
)

// Config holds the robot configuration
type Config struct {
	Base    ArmConfig `json:"base"`
	Forearm ArmConfig `json:"forearm"`
}

// ArmConfig holds configuration for a single arm
type ArmConfig struct {
	Port        string      `json:"port"`
	BaudRate    int         `json:"baud_rate,omitempty"`
	Driver      Driver      `json:"driver,omitempty"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// DriverOrDefault returns the configured driver, defaulting to serial.
func (a *ArmConfig) DriverOrDefault() Driver {
	if a.Driver == "" {
		return DriverSerial
	}
	return a.Driver
}

// BaudRateOrDefault returns the configured baud rate, defaulting to 115200.
func (a *ArmConfig) BaudRateOrDefault() int {
	if a.BaudRate <= 0 {
		return DefaultBaudRate
	}
	return a.BaudRate
}

// IsCalibrated returns true if the arm has calibration data
func (a *ArmConfig) IsCalibrated() bool {
	return len(a.Calibration) > 0
}

// Validate checks that the arm can be opened with its driver.
func (a *ArmConfig) Validate() error {
	switch a.DriverOrDefault() {
	case DriverSerial:
		if a.Port == "" {
			return fmt.Errorf("serial driver requires a port")
		}
	case DriverFeetech:
		if a.Port == "" {
			return fmt.Errorf("feetech driver requires a port")
		}
		if !a.IsCalibrated() {
			return fmt.Errorf("feetech driver requires calibration")
		}
	case DriverSim:
	default:
		return fmt.Errorf("unknown driver %q", a.Driver)
	}
	return nil
}

// LoadConfigFrom loads configuration from a specific file
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if a config file exists at path
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
