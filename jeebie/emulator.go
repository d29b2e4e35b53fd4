package jeebie

import (
	"github.com/elimarsh/pocketz80/jeebie/debug"
	"github.com/elimarsh/pocketz80/jeebie/input/action"
	"github.com/elimarsh/pocketz80/jeebie/timing"
	"github.com/elimarsh/pocketz80/jeebie/video"
)

// Emulator is the interface for all emulator implementations
type Emulator interface {
	RunUntilFrame() error
	GetCurrentFrame() *video.FrameBuffer
	HandleAction(act action.Action, pressed bool)
	ExtractDebugData() *debug.CompleteDebugData
	SetFrameLimiter(limiter timing.Limiter)
	ResetFrameTiming()
}

var _ Emulator = (*DMG)(nil)
