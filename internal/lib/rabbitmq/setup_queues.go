package rabbitmq

// QueueConfig очередь и ключ маршрутизации, с которым она привязана к Exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Очередь исходящих писем.
const (
	EmailQueue      = "email.outbound"
	EmailRoutingKey = "email"
)

// EmailQueues очереди, которые читает почтовый воркер.
func EmailQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: EmailQueue, RoutingKey: EmailRoutingKey},
	}
}
