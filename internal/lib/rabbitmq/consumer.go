package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/credit-engine/internal/lib/sl"
)

// ErrPermanent помечает сообщение, которое бессмысленно обрабатывать повторно.
// Такое сообщение отклоняется без возврата в очередь.
var ErrPermanent = errors.New("permanent message failure")

// ConsumerMessage запускает потребителя очереди. Обработчики выполняются
// параллельно, не больше workers одновременно. Ошибка обработчика возвращает
// сообщение в очередь, если она не обёрнута в ErrPermanent.
//
// После отмены ctx новые сообщения не берутся, а уже начатые дорабатывают с
// контекстом без отмены. Возвращаемая wait блокирует, пока не завершится
// последний обработчик; канал можно закрывать только после неё.
func ConsumerMessage(ctx context.Context, log *slog.Logger, ch *amqp.Channel, queueName string, workers int,
	handler func(context.Context, []byte) error) (func(), error) {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatch(ctx, log, delivery, workers, &wg, handler)
	}()
	return wg.Wait, nil
}

func dispatch(ctx context.Context, log *slog.Logger, delivery <-chan amqp.Delivery, workers int, wg *sync.WaitGroup,
	handler func(context.Context, []byte) error) {
	handlerCtx := context.WithoutCancel(ctx)
	sem := make(chan struct{}, workers)
	for {
		select {
		case d, ok := <-delivery:
			if !ok {
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				if err := d.Nack(false, true); err != nil {
					log.Error("failed to return message to queue", sl.Err(err))
				}
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				handle(handlerCtx, log, d, handler)
			}()
		case <-ctx.Done():
			return
		}
	}
}

func handle(ctx context.Context, log *slog.Logger, d amqp.Delivery, handler func(context.Context, []byte) error) {
	err := handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack message", sl.Err(ackErr))
		}
		return
	}

	requeue := !errors.Is(err, ErrPermanent)
	log.Warn("message handler failed", sl.Err(err), slog.Bool("requeue", requeue))
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		log.Error("failed to nack message", sl.Err(nackErr))
	}
}
