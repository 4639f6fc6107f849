package broker

import "context"

// Transport is the low-level MQTT client driven by the Manager.
//
// Implementations must not reconnect on their own; the Manager owns the
// reconnect policy. Handlers registered via Bind may be invoked from any
// goroutine.
type Transport interface {
	Bind(onMessage func(topic string, payload []byte), onLost func(err error))
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string, qos byte) error
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	Disconnect()
}
