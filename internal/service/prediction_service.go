package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oculoscan/oculoscan-api/internal/models"
	appErrors "github.com/oculoscan/oculoscan-api/pkg/errors"
)

// PredictionConfig points the adapter at the hosted classifier.
type PredictionConfig struct {
	BaseURL string
	Timeout time.Duration
}

// PredictionService calls the hosted eye-disease classifier. The result is
// advisory: callers treat every error here as recoverable and no state
// transition ever waits on it.
type PredictionService struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	metrics *MetricsService
	logger  *zap.Logger
}

// NewPredictionService constructs the adapter.
func NewPredictionService(cfg PredictionConfig, metrics *MetricsService, logger *zap.Logger) *PredictionService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredictionService{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  &http.Client{},
		metrics: metrics,
		logger:  logger,
	}
}

// Classify uploads the image and returns the label->confidence distribution.
// The call is bounded by the configured timeout on top of the caller context;
// a deadline hit surfaces as PredictionTimeout without touching any state.
func (s *PredictionService) Classify(ctx context.Context, filename string, image io.Reader) (*models.PredictionResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPrediction.Code, appErrors.ErrPrediction.Status, "failed to build prediction payload")
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPrediction.Code, appErrors.ErrPrediction.Status, "failed to read image")
	}
	if err := writer.Close(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPrediction.Code, appErrors.ErrPrediction.Status, "failed to finalise prediction payload")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/predict", body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPrediction.Code, appErrors.ErrPrediction.Status, "failed to build prediction request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			if s.metrics != nil {
				s.metrics.ObservePrediction("timeout", time.Since(start))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrPredictionTimeout.Code, appErrors.ErrPredictionTimeout.Status, "prediction service timed out")
		}
		if s.metrics != nil {
			s.metrics.ObservePrediction("error", time.Since(start))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPrediction.Code, appErrors.ErrPrediction.Status, "prediction service unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		if s.metrics != nil {
			s.metrics.ObservePrediction("error", time.Since(start))
		}
		return nil, appErrors.Clone(appErrors.ErrPrediction, fmt.Sprintf("prediction service returned status %d", resp.StatusCode))
	}

	var result models.PredictionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if s.metrics != nil {
			s.metrics.ObservePrediction("error", time.Since(start))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPrediction.Code, appErrors.ErrPrediction.Status, "failed to decode prediction response")
	}
	if s.metrics != nil {
		s.metrics.ObservePrediction("ok", time.Since(start))
	}
	s.logger.Debug("prediction received",
		zap.String("predicted_class", result.PredictedClass),
		zap.Float64("confidence", result.Confidence),
	)
	return &result, nil
}
