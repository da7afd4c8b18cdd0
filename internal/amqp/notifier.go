package amqp

import (
	"context"
	"sync"
	"time"

	"tucano/internal/docstore"
	"tucano/internal/log"
)

// Publisher sends change messages to the broker.
type Publisher interface {
	PublishChange(ctx context.Context, msg *ChangeMessage) error
}

// notifiedRoots are the top-level paths whose writes the worker cares about.
var notifiedRoots = map[string]bool{
	"transactions":       true,
	"creditCardSettings": true,
}

// Notifier turns committed document store writes into change messages.
// Publishing happens on a background goroutine so writes never wait on the
// broker; when the queue is full the message is dropped and the worker's
// scheduled sweep catches up.
type Notifier struct {
	pub    Publisher
	queue  chan *ChangeMessage
	done   chan struct{}
	logger *log.Logger
	once   sync.Once
}

func NewNotifier(pub Publisher, buffer int, logger *log.Logger) *Notifier {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	n := &Notifier{
		pub:    pub,
		queue:  make(chan *ChangeMessage, buffer),
		done:   make(chan struct{}),
		logger: logger.WithComponent(log.ComponentAMQP),
	}
	go n.run()
	return n
}

// Hook is registered with docstore.Store.OnChange.
func (n *Notifier) Hook() docstore.ChangeHook {
	return func(ctx context.Context, c docstore.Change) {
		segs, err := docstore.SplitPath(c.Path)
		if err != nil || len(segs) < 2 || !notifiedRoots[segs[0]] {
			return
		}
		msg := NewChangeMessage(segs[1], c.Path, string(c.Op))
		select {
		case n.queue <- msg:
		default:
			n.logger.WarnContext(ctx, "Change notification dropped, queue full", log.FieldUserID, msg.UserID)
		}
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout+time.Second)
		if err := n.pub.PublishChange(ctx, msg); err != nil {
			n.logger.Error("Failed to publish change message",
				log.FieldUserID, msg.UserID,
				log.FieldPath, msg.Path,
				log.FieldError, err)
		}
		cancel()
	}
}

// Close stops accepting hooks' messages after the pending ones are sent.
// The hook must not fire after Close.
func (n *Notifier) Close() {
	n.once.Do(func() {
		close(n.queue)
		<-n.done
	})
}
