package trajectory

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/holonomic/utils"
)

// tick is the periodic control step: read the pose, synthesize raw consigns,
// evaluate per-axis completion, then emit. All of it is bounded arithmetic
// plus one read from the position provider and one write to the actuator.
func (m *Manager) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taskID == nil || m.pos == nil || m.act == nil {
		return
	}
	pose := r3.Vector{X: m.pos.X(), Y: m.pos.Y()}
	heading := m.pos.Heading()

	speed, direction, omega := m.synthesizeLocked(pose, heading)

	if m.turning == nil && m.moving != nil && m.inPositionWindowLocked(pose, m.dWin) {
		if mc, ok := m.moving.(movingCircle); ok {
			// an arc is only done at its true endpoint, not at any point of
			// the circle the keyframe happens to pass through
			if utils.Dist(pose, mc.arrival) < m.dWin {
				m.moving = nil
				m.deregisterLocked()
				return
			}
		} else {
			// hold the stop until the ramped speed has decayed, otherwise we
			// would declare arrival while still coasting
			if m.speedRamp.previous() < m.cfg.StopSpeedThreshold {
				m.moving = nil
				m.deregisterLocked()
				return
			}
			speed = 0
		}
	}
	if m.moving == nil && m.turning != nil && m.inAngleWindowLocked(pose, heading, m.aWin) {
		m.turning = nil
		m.deregisterLocked()
		return
	}

	m.emitLocked(speed, direction, omega)
}

// synthesizeLocked computes the raw consign triple for the current pose,
// pre-ramp. The moving axis contributes speed and direction, the turning
// axis contributes rotation speed.
func (m *Manager) synthesizeLocked(pose r3.Vector, heading float64) (speed, direction, omega float64) {
	switch ms := m.moving.(type) {
	case movingStraight:
		m.target = ms.target
		direction = utils.AngleOf(ms.target.Sub(pose))
		speed = m.cfg.CruiseSpeed
		if dist := utils.Dist(pose, ms.target); dist < m.cfg.DecelDistance {
			speed = m.cfg.DecelGain * dist
		}
	case movingCircle:
		// the keyframe leads the robot around the arc by a constant angular
		// offset, recomputed from the current pose every tick
		current := utils.AngleOf(pose.Sub(ms.center))
		lead := current + math.Copysign(m.cfg.KeyframeLeadAngle, ms.arcAngle)
		m.target = pointOnCircle(ms.center, ms.radius, lead)
		direction = utils.AngleOf(m.target.Sub(pose))
		speed = m.cfg.CruiseSpeed * m.cfg.CircleSpeedFraction
	}

	switch ts := m.turning.(type) {
	case turningCap:
		// bang-bang turn: fixed magnitude, signed toward the shorter rotation
		if utils.BestDeltaAngle(ts.target-heading) >= 0 {
			omega = m.cfg.CapRotationSpeed
		} else {
			omega = -m.cfg.CapRotationSpeed
		}
	case turningSpeedOffset:
		omega = ts.ctrl(m.headingErrorLocked(pose, heading))
	case turningFacePoint:
		omega = ts.ctrl(m.headingErrorLocked(pose, heading))
	}
	return speed, direction, omega
}

// turnTargetLocked returns the heading the active turning mode wants, false
// when the turning axis is idle.
func (m *Manager) turnTargetLocked(pose r3.Vector) (float64, bool) {
	switch ts := m.turning.(type) {
	case turningCap:
		return ts.target, true
	case turningSpeedOffset:
		return m.normalizeAngle(m.pos.VelocityHeading() + ts.offset), true
	case turningFacePoint:
		return utils.AngleOf(ts.point.Sub(pose)), true
	}
	return 0, false
}

// headingErrorLocked is the shorter signed rotation from the current heading
// to the turning target.
func (m *Manager) headingErrorLocked(pose r3.Vector, heading float64) float64 {
	target, ok := m.turnTargetLocked(pose)
	if !ok {
		return 0
	}
	return utils.BestDeltaAngle(target - heading)
}

// inPositionWindowLocked reports whether the pose is strictly within d mm of
// the moving axis target.
func (m *Manager) inPositionWindowLocked(pose r3.Vector, d float64) bool {
	return utils.Dist(pose, m.target) < d
}

// inAngleWindowLocked reports whether the heading is strictly within the
// angular window of full width a around the turning target. The two-branch
// test handles wraparound near +-pi without a full modulo.
func (m *Manager) inAngleWindowLocked(pose r3.Vector, heading, a float64) bool {
	target, ok := m.turnTargetLocked(pose)
	if !ok {
		return false
	}
	delta := math.Abs(target - heading)
	if delta < math.Pi {
		return delta < a/2
	}
	return 2*math.Pi-delta < a/2
}

// emitLocked ramps the speed consign and hands the triple to the actuator.
// Direction and rotation speed are passed through unramped.
func (m *Manager) emitLocked(speed, direction, omega float64) {
	m.act.SetSpeed(m.speedRamp.next(speed))
	m.act.SetDirection(utils.F16FromFloat(direction))
	m.act.SetRotationSpeed(omega)
}

func pointOnCircle(center r3.Vector, radius, angle float64) r3.Vector {
	return r3.Vector{
		X: center.X + math.Cos(angle)*radius,
		Y: center.Y + math.Sin(angle)*radius,
	}
}
