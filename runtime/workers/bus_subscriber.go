package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
)

// BusSubscriber keeps the process subscribed to the bus for as long as it runs.
// A failed subscription is returned so that the supervisor retries it.
type BusSubscriber struct {
	subscribe func(ctx context.Context) error
	health    contract.IHealthReporter
	log       *slog.Logger
}

func NewBusSubscriber(subscribe func(ctx context.Context) error, health contract.IHealthReporter, log *slog.Logger) *BusSubscriber {
	return &BusSubscriber{subscribe: subscribe, health: health, log: log}
}

func (w *BusSubscriber) Run(ctx context.Context) error {
	if err := w.subscribe(ctx); err != nil {
		w.health.SetServing(false)
		w.log.Error("Unable to subscribe to the bus", "error", err)
		return err
	}
	w.health.SetServing(true)
	w.log.Info("Delivering bus events to local connections")

	<-ctx.Done()
	w.health.SetServing(false)
	return ctx.Err()
}
