package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/raaihank/fin-sentinel/internal/logger"
	"go.uber.org/zap"
)

// Masker applies the ordered detector set and the per-class policies to text.
// It holds no mutable state and is safe for concurrent use.
type Masker struct {
	detectors     []Detector
	pseudonymizer *Pseudonymizer
	logger        *logger.Logger
}

// NewMasker creates a masker bound to a pseudonymizer.
func NewMasker(p *Pseudonymizer, log *logger.Logger) *Masker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Masker{
		detectors:     Detectors(),
		pseudonymizer: p,
		logger:        log,
	}
}

// Mask returns text with every detected PII span replaced by its class token.
func (m *Masker) Mask(text string) string {
	return m.Process(text).MaskedText
}

// MaskAll masks every element of texts.
func (m *Masker) MaskAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = m.Mask(t)
	}
	return out
}

// Process masks text and reports how many spans of each class were rewritten.
//
// Detectors run in order over the progressively rewritten text, so a span
// replaced by an earlier detector cannot be captured by a later one. The
// ordered pass repeats until the text is stable: a revealed suffix can line
// up with neighbouring digits into a new match. Every rewrite removes at
// least one digit or '@', so the loop terminates. Text is canonicalized first,
// so digits of other scripts and compatibility forms are masked too and the
// returned text is in canonical form.
func (m *Masker) Process(text string) ProcessResult {
	if text == "" {
		return ProcessResult{MaskedText: text, Findings: []Finding{}}
	}

	counts := make(map[Class]int)
	masked := Canonicalize(text)
	for pass := 0; pass <= len(masked); pass++ {
		next := m.pass(masked, counts)
		if next == masked {
			break
		}
		masked = next
	}

	findings := make([]Finding, 0, len(counts))
	for _, d := range m.detectors {
		if n := counts[d.Class]; n > 0 {
			findings = append(findings, Finding{Class: d.Class, Count: n})
		}
	}

	return ProcessResult{
		MaskedText: masked,
		Findings:   findings,
	}
}

func (m *Masker) pass(text string, counts map[Class]int) string {
	for _, d := range m.detectors {
		matches := d.Detect(text)
		if len(matches) == 0 {
			continue
		}

		text = m.rewrite(text, matches)
		counts[d.Class] += len(matches)

		m.logger.Debug("PII detected and masked",
			zap.String("entity_type", string(d.Class)),
			zap.Int("count", len(matches)),
		)
	}
	return text
}

func (m *Masker) rewrite(text string, matches []Match) string {
	var b strings.Builder
	b.Grow(len(text))

	last := 0
	for _, match := range matches {
		b.WriteString(text[last:match.Start])
		b.WriteString(m.Token(match.Class, match.Value))
		last = match.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// Token renders the policy-determined replacement for a raw value of class.
func (m *Masker) Token(class Class, value string) string {
	policy := PolicyFor(class)
	if policy.Kind == Pseudonymize {
		return m.pseudonymizer.Pseudonymize(normalize(value, class), policy.Prefix)
	}
	return PartialRevealToken(value, class)
}

// AuditHash returns the SHA-256 hex digest of an already masked text. It is
// used to correlate requests without storing the prompt.
func AuditHash(masked string) string {
	sum := sha256.Sum256([]byte(masked))
	return hex.EncodeToString(sum[:])
}
