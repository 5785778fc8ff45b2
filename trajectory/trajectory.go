// Package trajectory computes periodic speed, direction and rotation-speed
// setpoints that steer a holonomic base toward a commanded point, arc or
// heading, and detects when the command is reached.
//
// A trajectory is made of two independent axes: a moving part (straight line
// to a point, arc around a center) and a turning part (hold a heading cap,
// face a point, hold an offset from the speed vector). Commands on one axis
// compose with whatever the other axis is doing. Once commanded, the manager
// schedules its own control tick and deregisters it when both active axes
// report arrival.
package trajectory

import (
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/holonomic/scheduler"
	"go.viam.com/holonomic/utils"
)

// PositionProvider supplies the current measured pose. Getters are called
// synchronously from the control tick and must not block.
type PositionProvider interface {
	// X and Y are the position in mm.
	X() float64
	Y() float64
	// Heading is the heading in radians.
	Heading() float64
	// HeadingF16 is the heading in the actuator's fixed-point format.
	HeadingF16() utils.F16
	// VelocityHeading is the angle of the current speed vector in radians.
	VelocityHeading() float64
}

// Actuator receives the synthesized consigns. Calls are fire and forget and
// are assumed applied before the next tick.
type Actuator interface {
	SetSpeed(speed float64)
	SetDirection(angle utils.F16)
	SetRotationSpeed(omega float64)
}

// Scheduler registers the periodic control tick. *scheduler.Scheduler
// satisfies it.
type Scheduler interface {
	Register(fn scheduler.Task, period time.Duration, priority int) (scheduler.TaskID, error)
	Deregister(id scheduler.TaskID)
}

// RotationController maps a signed heading error in radians to a rotation
// speed consign. Face-point and speed-offset turning only compute the error;
// the magnitude law is the caller's.
type RotationController func(headingErr float64) float64

// moving axis states; a nil movingState is idle.
type movingState interface{ isMovingState() }

type movingStraight struct {
	target r3.Vector
}

type movingCircle struct {
	center   r3.Vector
	radius   float64
	arcAngle float64
	// arrival is the arc endpoint, fixed at command time from the departure
	// pose. Arrival on a circle means reaching this exact point, not just any
	// point of the circle.
	arrival r3.Vector
}

func (movingStraight) isMovingState() {}
func (movingCircle) isMovingState()   {}

// turning axis states; a nil turningState is idle.
type turningState interface{ isTurningState() }

type turningCap struct {
	target float64
}

type turningSpeedOffset struct {
	offset float64
	ctrl   RotationController
}

type turningFacePoint struct {
	point r3.Vector
	ctrl  RotationController
}

func (turningCap) isTurningState()         {}
func (turningSpeedOffset) isTurningState() {}
func (turningFacePoint) isTurningState()   {}

// Manager owns one trajectory: per-axis state, targets, arrival windows and
// the scheduler registration of its control tick. It holds non-owning
// references to the position provider and the actuator sink, both of which
// must outlive it.
type Manager struct {
	logger golog.Logger
	cfg    Config
	sched  Scheduler

	mu      sync.Mutex
	pos     PositionProvider
	act     Actuator
	moving  movingState
	turning turningState
	// target is the point the moving axis is currently steering to: the
	// straight-line target, or the rolling keyframe while on an arc.
	target    r3.Vector
	dWin      float64
	aWin      float64
	speedRamp ramp
	complete  bool
	// taskID is present iff the control tick is registered; it is the single
	// source of truth for "this trajectory is actively ticking".
	taskID *scheduler.TaskID
}

// NewManager returns a manager ticking at the configured control frequency
// on the given scheduler.
func NewManager(cfg Config, sched Scheduler, logger golog.Logger) (*Manager, error) {
	if sched == nil {
		return nil, errors.New("a scheduler is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		logger:    logger,
		cfg:       cfg,
		sched:     sched,
		speedRamp: ramp{step: cfg.SpeedRampStep},
	}, nil
}

// SetRobotParams binds the position provider and actuator sink used by the
// control tick. Must be called before any motion command.
func (m *Manager) SetRobotParams(pos PositionProvider, act Actuator) error {
	if pos == nil || act == nil {
		return errors.New("position provider and actuator must both be non-nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = pos
	m.act = act
	return nil
}

// SetArrivalWindows sets the tolerances within which a target counts as
// reached: distance in mm for the moving axis, full angular width in radians
// for the turning axis.
func (m *Manager) SetArrivalWindows(distance, angle float64) error {
	if distance <= 0 || angle <= 0 {
		return errors.Errorf("arrival windows must be positive, got distance %f angle %f", distance, angle)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dWin = distance
	m.aWin = angle
	return nil
}

// SetRamps replaces the slew step applied to the speed consign, mm/s per
// tick. Direction and rotation speed are passed through unramped.
func (m *Manager) SetRamps(speedStep float64) error {
	if speedStep <= 0 {
		return errors.Errorf("ramp step must be positive, got %f", speedStep)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speedRamp.step = speedStep
	return nil
}

// MoveTo commands a straight line to the absolute point (x, y) in mm. Any
// active turning command keeps running alongside.
func (m *Manager) MoveTo(x, y float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	m.moving = movingStraight{target: r3.Vector{X: x, Y: y}}
	m.target = r3.Vector{X: x, Y: y}
	m.complete = false
	return m.scheduleLocked()
}

// MoveArc commands an arc of arcAngle radians around the absolute center
// (centerX, centerY) in mm, starting from the current position; positive
// angles sweep counterclockwise. The radius is the current distance to the
// center, so the command is rejected when the robot stands on the center.
func (m *Manager) MoveArc(centerX, centerY, arcAngle float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	if arcAngle == 0 {
		return errors.New("arc angle must be non-zero")
	}
	center := r3.Vector{X: centerX, Y: centerY}
	pose := r3.Vector{X: m.pos.X(), Y: m.pos.Y()}
	radius := utils.Dist(pose, center)
	if radius <= 0 {
		return errors.New("cannot arc around the current position, radius would be zero")
	}
	departure := utils.AngleOf(pose.Sub(center))
	mc := movingCircle{
		center:   center,
		radius:   radius,
		arcAngle: arcAngle,
		arrival:  pointOnCircle(center, radius, departure+arcAngle),
	}
	m.moving = mc
	m.target = pose
	m.complete = false
	if length, lerr := utils.ArcLength(pose, mc.arrival, radius); lerr == nil {
		m.logger.Debugw("arc commanded", "radius", radius, "arc_length", length)
	}
	return m.scheduleLocked()
}

// HoldHeading commands the turning axis to reach and hold the given heading
// cap in radians. Any active moving command keeps running alongside.
func (m *Manager) HoldHeading(capRad float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	m.turning = turningCap{target: m.normalizeAngle(capRad)}
	m.complete = false
	return m.scheduleLocked()
}

// FacePoint commands the turning axis to keep the heading pointed at the
// absolute point (x, y) in mm. The rotation speed magnitude is delegated to
// ctrl, which receives the signed heading error each tick.
func (m *Manager) FacePoint(x, y float64, ctrl RotationController) error {
	if ctrl == nil {
		return errors.New("face-point turning requires a rotation controller")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	m.turning = turningFacePoint{point: r3.Vector{X: x, Y: y}, ctrl: ctrl}
	m.complete = false
	return m.scheduleLocked()
}

// SpeedOffset commands the turning axis to hold the heading at a fixed
// offset, in radians, from the robot's current speed vector. The rotation
// speed magnitude is delegated to ctrl.
func (m *Manager) SpeedOffset(offset float64, ctrl RotationController) error {
	if ctrl == nil {
		return errors.New("speed-offset turning requires a rotation controller")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	m.turning = turningSpeedOffset{offset: offset, ctrl: ctrl}
	m.complete = false
	return m.scheduleLocked()
}

// SetConsigns bypasses synthesis and emits the given consigns once, through
// the usual speed ramp. Direction is in radians.
func (m *Manager) SetConsigns(speed, direction, omega float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil || m.act == nil {
		return errors.New("robot params not set, call SetRobotParams first")
	}
	m.emitLocked(speed, direction, omega)
	return nil
}

// Cancel deregisters the control tick, if any, and issues a final stop
// setpoint. Idempotent: cancelling an already finished or never scheduled
// trajectory changes nothing.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taskID == nil {
		return
	}
	m.moving = nil
	m.turning = nil
	m.deregisterLocked()
}

// Complete reports whether the last commanded trajectory has arrived.
func (m *Manager) Complete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.complete
}

// WithinDistance reports whether the robot is within d mm of the moving
// axis target. False when no robot params are bound.
func (m *Manager) WithinDistance(d float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return false
	}
	pose := r3.Vector{X: m.pos.X(), Y: m.pos.Y()}
	return m.inPositionWindowLocked(pose, d)
}

// WithinAngle reports whether the heading is within the angular window of
// full width a radians around the turning axis target. False when idle or
// when no robot params are bound.
func (m *Manager) WithinAngle(a float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return false
	}
	pose := r3.Vector{X: m.pos.X(), Y: m.pos.Y()}
	return m.inAngleWindowLocked(pose, m.pos.Heading(), a)
}

// readyLocked rejects motion commands until the collaborators and arrival
// windows are in place, so a misconfigured manager fails fast instead of
// feeding garbage setpoints downstream.
func (m *Manager) readyLocked() error {
	if m.pos == nil || m.act == nil {
		return errors.New("robot params not set, call SetRobotParams first")
	}
	if m.dWin == 0 || m.aWin == 0 {
		return errors.New("arrival windows not set, call SetArrivalWindows first")
	}
	return nil
}

// scheduleLocked registers the control tick unless it already is; there is
// never more than one registration per manager.
func (m *Manager) scheduleLocked() error {
	if m.taskID != nil {
		m.logger.Debug("trajectory tick already scheduled")
		return nil
	}
	id, err := m.sched.Register(m.tick, m.cfg.period(), m.cfg.Priority)
	if err != nil {
		return err
	}
	m.taskID = &id
	return nil
}

// deregisterLocked issues a final stop setpoint (zero speed, hold the current
// heading, zero rotation), marks the trajectory complete and removes the
// scheduler registration. Safe to call redundantly.
func (m *Manager) deregisterLocked() {
	m.speedRamp.reset()
	m.complete = true
	if m.act != nil && m.pos != nil {
		m.act.SetSpeed(0)
		m.act.SetDirection(m.pos.HeadingF16())
		m.act.SetRotationSpeed(0)
	}
	if m.taskID != nil {
		m.sched.Deregister(*m.taskID)
		m.taskID = nil
		m.logger.Debug("trajectory event deleted")
	}
}

func (m *Manager) normalizeAngle(a float64) float64 {
	if m.cfg.LegacyAngleWrap {
		return utils.ReduceModulo2PiLegacy(a)
	}
	return utils.ReduceModulo2Pi(a)
}
