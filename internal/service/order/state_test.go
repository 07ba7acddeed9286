package order

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velmart/backend/internal/models"
)

func TestOrderTransitionTable(t *testing.T) {
	allowed := map[[2]models.OrderStatus]bool{
		{models.OrderStatusPending, models.OrderStatusConfirmed}:    true,
		{models.OrderStatusPending, models.OrderStatusCancelled}:    true,
		{models.OrderStatusPending, models.OrderStatusRefunded}:     true,
		{models.OrderStatusConfirmed, models.OrderStatusProcessing}: true,
		{models.OrderStatusConfirmed, models.OrderStatusCancelled}:  true,
		{models.OrderStatusConfirmed, models.OrderStatusRefunded}:   true,
		{models.OrderStatusProcessing, models.OrderStatusShipped}:   true,
		{models.OrderStatusProcessing, models.OrderStatusCancelled}: true,
		{models.OrderStatusProcessing, models.OrderStatusRefunded}:  true,
		{models.OrderStatusShipped, models.OrderStatusDelivered}:    true,
	}

	all := []models.OrderStatus{
		models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusProcessing,
		models.OrderStatusShipped, models.OrderStatusDelivered, models.OrderStatusCancelled,
		models.OrderStatusRefunded,
	}
	for _, from := range all {
		for _, to := range all {
			require.Equal(t, allowed[[2]models.OrderStatus{from, to}], CanTransition(from, to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestTerminalOrderStatesRejectEverything(t *testing.T) {
	all := []models.OrderStatus{
		models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusProcessing,
		models.OrderStatusShipped, models.OrderStatusDelivered, models.OrderStatusCancelled,
		models.OrderStatusRefunded,
	}
	for _, terminal := range []models.OrderStatus{models.OrderStatusDelivered, models.OrderStatusCancelled, models.OrderStatusRefunded} {
		require.True(t, IsTerminal(terminal))
		for _, to := range all {
			require.False(t, CanTransition(terminal, to), "%s -> %s must be rejected", terminal, to)
		}
	}
}

func TestPaymentTransitionTable(t *testing.T) {
	require.True(t, CanTransitionPayment(models.PaymentStatusPending, models.PaymentStatusAuthorized))
	require.True(t, CanTransitionPayment(models.PaymentStatusPending, models.PaymentStatusCaptured))
	require.True(t, CanTransitionPayment(models.PaymentStatusPending, models.PaymentStatusFailed))
	require.True(t, CanTransitionPayment(models.PaymentStatusPending, models.PaymentStatusCancelled))
	require.True(t, CanTransitionPayment(models.PaymentStatusAuthorized, models.PaymentStatusCaptured))

	// Settled outcomes stay settled; a failed payment is retried through a
	// fresh payment row, never revived.
	require.True(t, IsTerminalPayment(models.PaymentStatusCaptured))
	require.True(t, IsTerminalPayment(models.PaymentStatusFailed))
	require.False(t, CanTransitionPayment(models.PaymentStatusFailed, models.PaymentStatusPending))
	require.False(t, CanTransitionPayment(models.PaymentStatusCaptured, models.PaymentStatusPending))
	require.False(t, CanTransitionPayment(models.PaymentStatusCaptured, models.PaymentStatusFailed))
	require.False(t, CanTransitionPayment(models.PaymentStatusCancelled, models.PaymentStatusCaptured))
	require.False(t, CanTransitionPayment(models.PaymentStatusRefunded, models.PaymentStatusPending))
}

func TestCancellable(t *testing.T) {
	require.True(t, Cancellable(models.OrderStatusPending))
	require.True(t, Cancellable(models.OrderStatusConfirmed))
	require.True(t, Cancellable(models.OrderStatusProcessing))
	require.False(t, Cancellable(models.OrderStatusShipped))
	require.False(t, Cancellable(models.OrderStatusDelivered))
	require.False(t, Cancellable(models.OrderStatusCancelled))
}
