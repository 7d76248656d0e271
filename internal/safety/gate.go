package safety

import (
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/raaihank/fin-sentinel/internal/logger"
	"github.com/raaihank/fin-sentinel/internal/privacy"
)

// Status is the outcome of a gate evaluation.
type Status string

const (
	StatusPass     Status = "pass"
	StatusRedacted Status = "redacted"
)

// Confidence is the confidence label attached to an answer.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
)

// MaxSources caps the number of context snippets echoed with a passing answer.
const MaxSources = 5

const redactedMarker = "[REDACTED]"

// residual patterns are deliberately looser than the detectors: no word
// boundaries, so digits glued to letters are still caught.
var residual = []*regexp.Regexp{
	regexp.MustCompile(`\d{10,}`),
	regexp.MustCompile(`(?i)[A-Z]{5}[0-9]{4}[A-Z]`),
}

var gateVerdicts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sentinel_gate_verdicts_total",
		Help: "Total number of output safety gate verdicts by status",
	},
	[]string{"status"},
)

// Verdict is the gated form of a model response.
type Verdict struct {
	Status     Status     `json:"status"`
	Answer     string     `json:"answer"`
	Confidence Confidence `json:"confidence"`
	Sources    []string   `json:"sources"`
}

// Gate is the last check before a response leaves the system. It is stateless
// and safe for concurrent use.
type Gate struct {
	masker *privacy.Masker
	logger *logger.Logger
}

// NewGate creates a gate that re-masks through masker on escalation.
func NewGate(masker *privacy.Masker, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.NewNop()
	}
	return &Gate{
		masker: masker,
		logger: log.WithComponent("safety_gate"),
	}
}

// HasResidualRisk reports whether text still contains a long digit run or a
// tax-ID shaped token, in any script.
func HasResidualRisk(text string) bool {
	text = privacy.Canonicalize(text)
	for _, re := range residual {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Evaluate gates an already masked response. Sources are returned only when
// the response passes.
func (g *Gate) Evaluate(masked string, sources []string) Verdict {
	masked = privacy.Canonicalize(masked)
	if !HasResidualRisk(masked) {
		gateVerdicts.WithLabelValues(string(StatusPass)).Inc()
		return Verdict{
			Status:     StatusPass,
			Answer:     masked,
			Confidence: ConfidenceMedium,
			Sources:    capSources(sources),
		}
	}

	answer := g.masker.Mask(masked)
	for _, re := range residual {
		answer = re.ReplaceAllString(answer, redactedMarker)
	}

	g.logger.Warn("Residual PII risk in model output, response redacted",
		zap.Int("response_length", len(masked)),
		zap.Int("dropped_sources", len(sources)),
	)
	gateVerdicts.WithLabelValues(string(StatusRedacted)).Inc()

	return Verdict{
		Status:     StatusRedacted,
		Answer:     answer,
		Confidence: ConfidenceLow,
		Sources:    []string{},
	}
}

func capSources(sources []string) []string {
	n := len(sources)
	if n > MaxSources {
		n = MaxSources
	}
	out := make([]string, n)
	copy(out, sources[:n])
	return out
}
