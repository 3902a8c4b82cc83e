package notify

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const sendTimeout = 30 * time.Second

type deliverMessage struct {
	msg *Message
}

// mailerActor hands queued messages to the underlying sender one at a time.
type mailerActor struct {
	sender   Sender
	logger   *zap.Logger
	observer func(error)
}

func (a *mailerActor) Receive(ctx actor.Context) {
	switch m := ctx.Message().(type) {
	case *deliverMessage:
		sendCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := a.sender.Send(sendCtx, m.msg)
		cancel()
		if err != nil {
			a.logger.Error("Failed to send email",
				zap.String("to", m.msg.To),
				zap.String("subject", m.msg.Subject),
				zap.Error(err))
		} else {
			a.logger.Info("Email sent", zap.String("to", m.msg.To), zap.String("subject", m.msg.Subject))
		}
		if a.observer != nil {
			a.observer(err)
		}

	case *actor.Started:
		a.logger.Debug("Mailer actor started")

	case *actor.Stopped:
		a.logger.Debug("Mailer actor stopped")
	}
}

// Dispatcher is a Sender that queues messages on an actor so request
// handlers never wait on mail delivery.
type Dispatcher struct {
	system *actor.ActorSystem
	pid    *actor.PID
}

// NewDispatcher spawns the mailer actor. observe, when non-nil, is called
// with the outcome of every delivery.
func NewDispatcher(sender Sender, logger *zap.Logger, observe func(error)) *Dispatcher {
	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return &mailerActor{sender: sender, logger: logger.Named("mailer"), observer: observe}
	})
	return &Dispatcher{
		system: system,
		pid:    system.Root.Spawn(props),
	}
}

// Send enqueues msg and returns immediately.
func (d *Dispatcher) Send(_ context.Context, msg *Message) error {
	d.system.Root.Send(d.pid, &deliverMessage{msg: msg})
	return nil
}

// Stop drains queued messages and shuts the actor system down.
func (d *Dispatcher) Stop() {
	_ = d.system.Root.PoisonFuture(d.pid).Wait()
	d.system.Shutdown()
}
