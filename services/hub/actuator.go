package hub

import (
	"sync/atomic"

	"go.uber.org/zap"

	"floraseven/protocol"
)

// Controller is the hub's handle on the pump node. *pumpnode.Device satisfies it.
type Controller interface {
	SendCommand(cmd protocol.Command) error
	RequestValue(cmd protocol.Command) (float32, error)
}

// BusObserver records bus transactions and the believed pump state. May be nil.
type BusObserver interface {
	BusTransaction(op string, err error)
	Actuator(on bool)
}

// Actuator tracks the hub's belief about the pump. The belief changes only
// when the node acknowledged the write; nothing is read back from the node.
type Actuator struct {
	ctl    Controller
	obs    BusObserver
	log    *zap.Logger
	active atomic.Bool
}

func NewActuator(ctl Controller, obs BusObserver, log *zap.Logger) *Actuator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Actuator{ctl: ctl, obs: obs, log: log.Named("actuator")}
}

// SendCommand implements router.Commander.
func (a *Actuator) SendCommand(cmd protocol.Command) error {
	err := a.ctl.SendCommand(cmd)
	a.record(cmd, err)
	if err != nil {
		a.log.Warn("command not delivered", zap.Stringer("cmd", cmd), zap.Error(err))
		return err
	}
	a.log.Info("command sent", zap.Stringer("cmd", cmd))
	if cmd.IsActuator() {
		on := cmd == protocol.PumpOn
		a.active.Store(on)
		if a.obs != nil {
			a.obs.Actuator(on)
		}
	}
	return nil
}

// Active is the believed pump state.
func (a *Actuator) Active() bool { return a.active.Load() }

// Acidity reads quantity A from the node.
func (a *Actuator) Acidity() (float32, error) { return a.request(protocol.RequestAcidity) }

// Ultraviolet reads quantity B from the node.
func (a *Actuator) Ultraviolet() (float32, error) { return a.request(protocol.RequestUltraviolet) }

func (a *Actuator) request(cmd protocol.Command) (float32, error) {
	v, err := a.ctl.RequestValue(cmd)
	a.record(cmd, err)
	if err != nil {
		a.log.Warn("read failed", zap.Stringer("cmd", cmd), zap.Error(err))
	}
	return v, err
}

func (a *Actuator) record(cmd protocol.Command, err error) {
	if a.obs != nil {
		a.obs.BusTransaction(cmd.String(), err)
	}
}
