package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPredictionServiceClassify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/predict", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close() //nolint:errcheck
		require.Equal(t, "scan.png", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"predicted_class": "diabetic_retinopathy",
			"confidence": 0.87,
			"class_probabilities": {
				"cataract": 0.02,
				"diabetic_retinopathy": 0.87,
				"glaucoma": 0.04,
				"normal": 0.07
			}
		}`))
	}))
	defer server.Close()

	svc := NewPredictionService(PredictionConfig{BaseURL: server.URL, Timeout: 5 * time.Second}, nil, nil)
	result, err := svc.Classify(context.Background(), "scan.png", strings.NewReader("imagedata"))
	require.NoError(t, err)
	require.Equal(t, "diabetic_retinopathy", result.PredictedClass)
	require.InDelta(t, 0.87, result.Confidence, 0.001)
	require.Len(t, result.Probabilities, 4)
}

func TestPredictionServiceNon200IsPredictionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewPredictionService(PredictionConfig{BaseURL: server.URL, Timeout: 5 * time.Second}, nil, nil)
	_, err := svc.Classify(context.Background(), "scan.png", strings.NewReader("imagedata"))
	requireCode(t, err, "PREDICTION_ERROR")
}

func TestPredictionServiceTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	svc := NewPredictionService(PredictionConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, nil, nil)
	_, err := svc.Classify(context.Background(), "scan.png", strings.NewReader("imagedata"))
	requireCode(t, err, "PREDICTION_TIMEOUT")
}
