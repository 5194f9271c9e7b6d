package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher — fire-and-forget публикация событий. Публикация никогда не
// возвращает ошибку: сбой одного подписчика не касается ни издателя, ни
// остальных подписчиков.
type Publisher interface {
	Publish(ctx context.Context, name string, payload map[string]interface{}, metadata map[string]string)
}

type Handler func(ctx context.Context, event Event)

// Bus — внутрипроцессная шина с fan-out по имени события.
// Конструируется один раз при старте процесса и передаётся явно;
// глобального синглтона нет намеренно.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

// Publish рассылает событие всем подписчикам имени. Каждый обработчик
// изолирован: паника в одном логируется и не прерывает остальных.
func (b *Bus) Publish(ctx context.Context, name string, payload map[string]interface{}, metadata map[string]string) {
	event := Event{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    payload,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[name]))
	copy(handlers, b.handlers[name])
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.invoke(ctx, handler, event)
	}
}

func (b *Bus) invoke(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("event handler panicked",
				slog.String("event", event.Name),
				slog.String("event_id", event.ID),
				slog.Any("panic", rec))
		}
	}()
	handler(ctx, event)
}
