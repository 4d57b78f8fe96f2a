package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// Model predicts a fraud probability from a feature vector.
type Model interface {
	Predict(f Features) (float64, error)
	Describe() string
}

// LogisticModel is a logistic-regression model loaded from a JSON artifact.
// Training happens offline; the service only runs inference.
type LogisticModel struct {
	Weights      [NumFeatures]float64
	Bias         float64
	FeatureOrder []string
	TrainedAt    time.Time
}

type modelArtifact struct {
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	FeatureNames []string  `json:"feature_names"`
	TrainedAt    time.Time `json:"trained_at"`
}

// LoadLogisticModel reads a model artifact from disk. Callers decide
// whether a missing artifact is fatal; the estimator treats it as
// degraded operation, not an error.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}
	if len(artifact.Weights) != NumFeatures {
		return nil, fmt.Errorf("model artifact has %d weights, expected %d", len(artifact.Weights), NumFeatures)
	}
	if len(artifact.FeatureNames) != 0 {
		for i, name := range artifact.FeatureNames {
			if i >= NumFeatures || name != FeatureNames[i] {
				return nil, fmt.Errorf("model artifact feature order mismatch at %d: %q", i, name)
			}
		}
	}

	m := &LogisticModel{
		Bias:         artifact.Bias,
		FeatureOrder: artifact.FeatureNames,
		TrainedAt:    artifact.TrainedAt,
	}
	copy(m.Weights[:], artifact.Weights)
	return m, nil
}

// Predict computes sigmoid(w·x + b).
func (m *LogisticModel) Predict(f Features) (float64, error) {
	z := m.Bias
	for i, w := range m.Weights {
		z += w * f[i]
	}
	return sigmoid(z), nil
}

// Describe identifies the model for logs and the stats endpoint.
func (m *LogisticModel) Describe() string {
	if m.TrainedAt.IsZero() {
		return "logistic regression"
	}
	return fmt.Sprintf("logistic regression (trained %s)", m.TrainedAt.Format("2006-01-02"))
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
