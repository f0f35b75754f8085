package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/oculoscan/oculoscan-api/internal/models"
)

// TerminalNotifier is invoked after a scan request reaches a terminal state.
// Delivery (email, push, report generation) lives behind this contract.
type TerminalNotifier interface {
	NotifyTerminal(ctx context.Context, request *models.ScanRequest)
}

// TerminalNotifierFunc allows using plain functions.
type TerminalNotifierFunc func(ctx context.Context, request *models.ScanRequest)

// NotifyTerminal implements TerminalNotifier.
func (f TerminalNotifierFunc) NotifyTerminal(ctx context.Context, request *models.ScanRequest) {
	f(ctx, request)
}

// NewLogNotifier returns the default notifier, which only records the event.
func NewLogNotifier(logger *zap.Logger) TerminalNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return TerminalNotifierFunc(func(_ context.Context, request *models.ScanRequest) {
		logger.Info("scan request reached terminal state",
			zap.String("id", request.ID),
			zap.String("status", string(request.Status)),
			zap.String("patient_id", request.PatientID),
		)
	})
}
