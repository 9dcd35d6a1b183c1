package firmware

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/armlink/pkg/robot"
)

// DefaultSettleTolerance is how far, in raw steps, a servo may sit from its
// target and still count as arrived.
const DefaultSettleTolerance = 20

// FeetechActuator drives an arm built from Feetech STS servos on a host-attached bus.
type FeetechActuator struct {
	cal       robot.Calibration
	tolerance int

	enable  func(ctx context.Context) error
	disable func(ctx context.Context) error
	read    func(ctx context.Context) (feetech.PositionMap, error)
	write   func(ctx context.Context, pos feetech.PositionMap) error
	close   func() error

	enabled bool
	target  feetech.PositionMap
}

// OpenFeetech opens the servo bus on port and groups the calibrated servos.
func OpenFeetech(port string, cal robot.Calibration) (*FeetechActuator, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...)
	return &FeetechActuator{
		cal:       cal,
		tolerance: DefaultSettleTolerance,
		enable:    group.EnableAll,
		disable:   group.DisableAll,
		read:      group.Positions,
		write:     group.SetPositions,
		close:     bus.Close,
	}, nil
}

// MoveTo converts degrees to raw positions and writes them in one sync write.
// Angles beyond the calibrated joints are ignored.
func (f *FeetechActuator) MoveTo(ctx context.Context, degrees []float64) error {
	if !f.enabled {
		if err := f.enable(ctx); err != nil {
			return fmt.Errorf("enable torque: %w", err)
		}
		f.enabled = true
	}

	raw := make(feetech.PositionMap, len(degrees))
	for i, deg := range degrees {
		jc, ok := f.cal.ByIndex(i)
		if !ok {
			continue
		}
		raw[jc.ID] = jc.Raw(deg)
	}

	if err := f.write(ctx, raw); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	f.target = raw
	return nil
}

// Settled reads back every targeted servo and compares it to its goal.
func (f *FeetechActuator) Settled(ctx context.Context) (bool, error) {
	if len(f.target) == 0 {
		return true, nil
	}

	pos, err := f.read(ctx)
	if err != nil {
		return false, fmt.Errorf("read positions: %w", err)
	}
	for id, want := range f.target {
		got, ok := pos[id]
		if !ok {
			return false, nil
		}
		if d := got - want; d > f.tolerance || d < -f.tolerance {
			return false, nil
		}
	}
	return true, nil
}

// Halt holds every servo at its present position.
func (f *FeetechActuator) Halt(ctx context.Context) error {
	if len(f.target) == 0 {
		return nil
	}

	pos, err := f.read(ctx)
	if err != nil {
		return fmt.Errorf("read positions: %w", err)
	}
	hold := make(feetech.PositionMap, len(f.target))
	for id := range f.target {
		if p, ok := pos[id]; ok {
			hold[id] = p
		}
	}
	if err := f.write(ctx, hold); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	f.target = hold
	return nil
}

// Close releases torque and closes the bus.
func (f *FeetechActuator) Close() error {
	if f.enabled {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.disable(ctx)
		f.enabled = false
	}
	return f.close()
}
