package joybusrtc

import (
	"github.com/rs/zerolog/log"

	"rtc64/core"
	"rtc64/joybus"
)

type opKind int

const (
	opDetect opKind = iota
	opSetStopped
	opReadTime
)

type opStage int

const (
	stageIdentify opStage = iota
	stageReadControl
	stageWriteControl
	stageSettle
	stageReadTime
	stageDone
)

// asyncOp carries one asynchronous operation between transport
// completions. Only the callback matching kind is set.
type asyncOp struct {
	kind    opKind
	stage   opStage
	stop    bool
	control ControlBlock

	onDetect func(bool)
	onDone   func()
	onTime   func(int64)
}

// DetectAsync reports detection to cb, probing the port if no result is
// known yet. cb may run on the transport's completion goroutine.
func (d *Driver) DetectAsync(cb func(bool)) {
	switch d.DetectState() {
	case Detected:
		cb(true)
		return
	case NotDetected:
		cb(false)
		return
	}

	d.mu.Lock()
	d.waiters = append(d.waiters, cb)
	d.mu.Unlock()
	if d.detect.CompareAndSwap(int32(DetectInit), int32(DetectPending)) {
		d.startDetect()
		return
	}
	// Detection may have finished between the state check and queueing.
	if d.DetectState() != DetectPending {
		d.notifyDetect()
	}
}

// SetStoppedAsync is SetStopped chained through transport callbacks. done
// runs after the settle delay, or straight after the read when nothing had
// to change.
func (d *Driver) SetStoppedAsync(stop bool, done func()) {
	d.run(&asyncOp{kind: opSetStopped, stage: stageReadControl, stop: stop, onDone: done})
}

// ReadTimeAsync hands the RTC time to cb, or 0 when no RTC was detected.
func (d *Driver) ReadTimeAsync(cb func(int64)) {
	if !d.detected() {
		cb(0)
		return
	}
	d.run(&asyncOp{kind: opReadTime, stage: stageReadTime, onTime: cb})
}

func (d *Driver) startDetect() {
	d.run(&asyncOp{kind: opDetect, stage: stageIdentify})
}

// run issues the transport request for op's current stage.
func (d *Driver) run(op *asyncOp) {
	var c joybus.Command
	switch op.stage {
	case stageIdentify:
		c = d.command(identifyCmd(), 3)
	case stageReadControl:
		c = d.command(readCmd(BlockControl), BlockSize+1)
	case stageWriteControl:
		c = d.command(writeCmd(BlockControl, op.control), 1)
	case stageReadTime:
		c = d.command(readCmd(BlockTime), BlockSize+1)
	case stageSettle:
		core.AfterMs(d.SettleMs, func() { d.step(op, nil) })
		return
	default:
		return
	}
	joybus.ExecAsync(d.t, c, func(reply []byte, err error) {
		d.step(op, d.replyOrZero(c, reply, err))
	})
}

// step is the single transition function: it consumes the reply to op's
// current stage, advances the stage, and either issues the next request or
// completes the operation.
func (d *Driver) step(op *asyncOp, reply []byte) {
	switch op.kind {
	case opDetect:
		id, _ := parseIdentify(reply)
		state := NotDetected
		if id == Identifier {
			state = Detected
		}
		log.Debug().Stringer("state", state).Uint16("id", id).Msg("joybusrtc: detection finished")
		op.stage = stageDone
		d.detect.Store(int32(state))
		d.notifyDetect()

	case opSetStopped:
		switch op.stage {
		case stageReadControl:
			data, _ := parseRead(reply)
			op.control = ControlBlock(data)
			if op.control.Stop() == op.stop {
				op.stage = stageDone
				break
			}
			op.control.SetStop(op.stop)
			op.stage = stageWriteControl
		case stageWriteControl:
			op.stage = stageSettle
		case stageSettle:
			op.stage = stageDone
		}
		if op.stage == stageDone {
			op.onDone()
			return
		}
		d.run(op)

	case opReadTime:
		data, _ := parseRead(reply)
		op.stage = stageDone
		op.onTime(DecodeTime(data))
	}
}

func (d *Driver) notifyDetect() {
	d.mu.Lock()
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()

	ok := d.detected()
	for _, cb := range waiters {
		cb(ok)
	}
}
