package transport

import (
	"fmt"
	"slices"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port that may have a controller attached.
type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Product string
}

func (p PortInfo) String() string {
	if !p.USB {
		return p.Name
	}
	label := p.Name + " [" + p.VID + ":" + p.PID + "]"
	if p.Product != "" {
		label += " " + p.Product
	}
	return label
}

// ListPorts returns candidate controller ports, USB ports first.
// Bluetooth ports are skipped.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		// Some platforms lack detailed enumeration; fall back to names only.
		names, nerr := serial.GetPortsList()
		if nerr != nil {
			return nil, fmt.Errorf("list ports: %w", nerr)
		}
		var ports []PortInfo
		for _, name := range names {
			if skipPort(name) {
				continue
			}
			ports = append(ports, PortInfo{Name: name})
		}
		return ports, nil
	}

	var ports []PortInfo
	for _, d := range details {
		if skipPort(d.Name) {
			continue
		}
		ports = append(ports, PortInfo{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Product: d.Product,
		})
	}
	sortPorts(ports)
	return ports, nil
}

func skipPort(name string) bool {
	return strings.Contains(name, "Bluetooth")
}

func sortPorts(ports []PortInfo) {
	slices.SortStableFunc(ports, func(a, b PortInfo) int {
		switch {
		case a.USB == b.USB:
			return strings.Compare(a.Name, b.Name)
		case a.USB:
			return -1
		default:
			return 1
		}
	})
}
