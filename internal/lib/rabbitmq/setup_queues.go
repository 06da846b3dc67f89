package rabbitmq

import "github.com/magabrotheeeer/credit-engine/internal/config"

// QueueConfig очередь и ключ маршрутизации, которым она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Topology exchange, очереди и prefetch для канала.
type Topology struct {
	Exchange string
	Queues   []QueueConfig
	Prefetch int
}

// ReloadTopology строит топологию очереди авто-пополнения из конфига.
func ReloadTopology(cfg config.RabbitMQ) Topology {
	return Topology{
		Exchange: cfg.Exchange,
		Queues: []QueueConfig{
			{QueueName: cfg.ReloadQueue, RoutingKey: cfg.ReloadRoutingKey},
		},
		Prefetch: cfg.Prefetch,
	}
}
