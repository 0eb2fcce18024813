package event

import (
	"context"
	"sync"

	"github.com/maniartech/signals"
)

type Kind string

type TopicKey[T any] interface {
	Name() Kind
}

type topicKey[T any] struct {
	name Kind
}

func (t topicKey[T]) Name() Kind {
	return t.name
}

func NewTopicKey[T any](name Kind) TopicKey[T] {
	return topicKey[T]{name: name}
}

// Bus routes typed payloads to the listeners of a topic.
type Bus struct {
	lock        sync.RWMutex
	subscribers map[Kind]*signals.AsyncSignal[any]
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[Kind]*signals.AsyncSignal[any])}
}

var defaultBus = NewBus()

// Default returns the process wide bus.
func Default() *Bus {
	return defaultBus
}

func (b *Bus) signal(name Kind) *signals.AsyncSignal[any] {
	b.lock.RLock()
	sig, ok := b.subscribers[name]
	b.lock.RUnlock()
	if ok {
		return sig
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	if sig, ok = b.subscribers[name]; ok {
		return sig
	}
	sig = signals.New[any]()
	b.subscribers[name] = sig
	return sig
}

// Listeners returns the number of listeners attached to name.
func (b *Bus) Listeners(name Kind) int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if sig, ok := b.subscribers[name]; ok {
		return sig.Len()
	}
	return 0
}

// PublishOn returns an emitter for topic on bus. Payloads are delivered even
// when ctx is already cancelled.
func PublishOn[T any](bus *Bus, topic TopicKey[T]) func(ctx context.Context, payload T) {
	sig := bus.signal(topic.Name())
	return func(ctx context.Context, payload T) {
		sig.Emit(context.WithoutCancel(ctx), payload)
	}
}

// SubscribeOn attaches handler to topic on bus.
func SubscribeOn[T any](bus *Bus, topic TopicKey[T], handler func(ctx context.Context, payload T)) {
	bus.signal(topic.Name()).AddListener(func(ctx context.Context, payload any) {
		if v, ok := payload.(T); ok {
			handler(ctx, v)
		}
	})
}

// NewPublish returns an emitter for topic on the default bus.
func NewPublish[T any](topic TopicKey[T]) func(ctx context.Context, payload T) {
	return PublishOn[T](defaultBus, topic)
}

// Subscribe attaches handler to topic on the default bus.
func Subscribe[T any](topic TopicKey[T], handler func(ctx context.Context, payload T)) {
	SubscribeOn[T](defaultBus, topic, handler)
}
