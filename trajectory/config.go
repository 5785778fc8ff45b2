package trajectory

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Default tuning values, matching what the reference base was tuned with at a
// 100Hz control frequency. Override per robot through Config.
const (
	DefaultCruiseSpeed         = 500.0 // mm/s
	DefaultCircleSpeedFraction = 0.2
	DefaultDecelDistance       = 250.0 // mm
	DefaultDecelGain           = 2.0
	DefaultKeyframeLeadAngle   = 0.05 // rad
	DefaultCapRotationSpeed    = 50.0
	DefaultStopSpeedThreshold  = 20.0 // mm/s
	DefaultSpeedRampStep       = 20.0 // mm/s per tick
	DefaultPriority            = 30
)

// Config holds the control frequency and tuning values for one trajectory
// manager. Zero-valued tuning fields take the defaults above.
type Config struct {
	// FrequencyHz is the control tick frequency.
	FrequencyHz float64 `json:"frequency_hz"`
	// CruiseSpeed is the straight-line speed consign, mm/s.
	CruiseSpeed float64 `json:"cruise_speed,omitempty"`
	// CircleSpeedFraction scales CruiseSpeed while following an arc, where
	// curvature demands more control authority.
	CircleSpeedFraction float64 `json:"circle_speed_fraction,omitempty"`
	// DecelDistance is the remaining distance below which the straight-line
	// speed consign tapers, mm.
	DecelDistance float64 `json:"decel_distance,omitempty"`
	// DecelGain maps remaining distance to the tapered speed consign.
	DecelGain float64 `json:"decel_gain,omitempty"`
	// KeyframeLeadAngle is how far ahead of the robot, in radians around the
	// circle center, the rolling arc target point is placed.
	KeyframeLeadAngle float64 `json:"keyframe_lead_angle,omitempty"`
	// CapRotationSpeed is the fixed rotation speed magnitude used while
	// turning to a heading cap.
	CapRotationSpeed float64 `json:"cap_rotation_speed,omitempty"`
	// StopSpeedThreshold is the ramped speed below which a straight move
	// inside its arrival window is declared finished, mm/s.
	StopSpeedThreshold float64 `json:"stop_speed_threshold,omitempty"`
	// SpeedRampStep bounds the per-tick change of the emitted speed, mm/s.
	SpeedRampStep float64 `json:"speed_ramp_step,omitempty"`
	// Priority is the scheduler priority of the control tick.
	Priority int `json:"priority,omitempty"`
	// LegacyAngleWrap selects the historical quarter-turn angle wrap instead
	// of a full modulo reduction when normalizing heading targets.
	LegacyAngleWrap bool `json:"legacy_angle_wrap,omitempty"`
}

// Validate fills defaults into zero-valued tuning fields and rejects
// configurations that cannot produce a sane control loop.
func (c *Config) Validate() error {
	if c.FrequencyHz <= 0 || c.FrequencyHz > 1000 {
		return errors.Errorf("control frequency must be in (0, 1000] Hz, got %f", c.FrequencyHz)
	}
	if c.CruiseSpeed == 0 {
		c.CruiseSpeed = DefaultCruiseSpeed
	}
	if c.CircleSpeedFraction == 0 {
		c.CircleSpeedFraction = DefaultCircleSpeedFraction
	}
	if c.DecelDistance == 0 {
		c.DecelDistance = DefaultDecelDistance
	}
	if c.DecelGain == 0 {
		c.DecelGain = DefaultDecelGain
	}
	if c.KeyframeLeadAngle == 0 {
		c.KeyframeLeadAngle = DefaultKeyframeLeadAngle
	}
	if c.CapRotationSpeed == 0 {
		c.CapRotationSpeed = DefaultCapRotationSpeed
	}
	if c.StopSpeedThreshold == 0 {
		c.StopSpeedThreshold = DefaultStopSpeedThreshold
	}
	if c.SpeedRampStep == 0 {
		c.SpeedRampStep = DefaultSpeedRampStep
	}
	if c.Priority == 0 {
		c.Priority = DefaultPriority
	}
	var err error
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"cruise_speed", c.CruiseSpeed},
		{"circle_speed_fraction", c.CircleSpeedFraction},
		{"decel_distance", c.DecelDistance},
		{"decel_gain", c.DecelGain},
		{"keyframe_lead_angle", c.KeyframeLeadAngle},
		{"cap_rotation_speed", c.CapRotationSpeed},
		{"stop_speed_threshold", c.StopSpeedThreshold},
		{"speed_ramp_step", c.SpeedRampStep},
	} {
		if f.value < 0 {
			err = multierr.Append(err, errors.Errorf("%s must be positive, got %f", f.name, f.value))
		}
	}
	return err
}

// period returns the control tick period.
func (c *Config) period() time.Duration {
	return time.Duration(float64(time.Second) / c.FrequencyHz)
}
