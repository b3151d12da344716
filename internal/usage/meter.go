package usage

import (
	"context"

	"esign-backend/internal/shared/telemetry"
)

// MeterClient reports billable usage to the billing provider.
type MeterClient interface {
	RecordUsage(ctx context.Context, subscriptionID string, quantity int) error
}

// LogMeterClient logs usage instead of reporting it.
type LogMeterClient struct{}

func (LogMeterClient) RecordUsage(ctx context.Context, subscriptionID string, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	telemetry.Info("usage.meter_recorded", map[string]any{
		"subscription_id": subscriptionID,
		"quantity":        quantity,
	})
	return nil
}
