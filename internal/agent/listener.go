package agent

import "context"

// Delivery is the outbound side of the delivery gateway.
type Delivery interface {
	Send(ctx context.Context, address, body string) error
	Typing(ctx context.Context, address string) error
}

// DeliveryListener shows typing before each step and sends each increment
// to one address.
type DeliveryListener struct {
	delivery Delivery
	address  string
}

// NewDeliveryListener creates a Listener bound to address.
func NewDeliveryListener(delivery Delivery, address string) *DeliveryListener {
	return &DeliveryListener{delivery: delivery, address: address}
}

func (l *DeliveryListener) OnStepStart(ctx context.Context) error {
	return l.delivery.Typing(ctx, l.address)
}

func (l *DeliveryListener) OnChunk(ctx context.Context, text string) error {
	return l.delivery.Send(ctx, l.address, text)
}
