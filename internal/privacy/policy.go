package privacy

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"strings"
	"unicode"
)

// PolicyKind selects how a class is rewritten.
type PolicyKind int

const (
	// PartialReveal keeps a fixed window of the normalized value.
	PartialReveal PolicyKind = iota
	// Pseudonymize replaces the value with a salted one-way digest.
	Pseudonymize
)

// Policy is the fixed masking rule of a class.
type Policy struct {
	Kind   PolicyKind
	Prefix string
}

var policies = map[Class]Policy{
	ClassTaxID:           {Kind: PartialReveal, Prefix: "PAN"},
	ClassBankRoutingCode: {Kind: PartialReveal, Prefix: "IFSC"},
	ClassNationalID:      {Kind: PartialReveal, Prefix: "AADHAAR"},
	ClassAccountNumber:   {Kind: Pseudonymize, Prefix: "ACC"},
	ClassEmailAddress:    {Kind: Pseudonymize, Prefix: "EMAIL"},
	ClassPhoneNumber:     {Kind: PartialReveal, Prefix: "PHONE"},
}

// PolicyFor returns the masking policy of class.
func PolicyFor(class Class) Policy {
	if p, ok := policies[class]; ok {
		return p
	}
	return Policy{Kind: Pseudonymize, Prefix: "PID"}
}

const (
	// digestBytes is half the number of symbols in a pseudonym body.
	digestBytes = 6

	// Letters only: a pseudonym never contains a digit, so no detector can
	// re-match it and masking stays idempotent.
	pseudonymAlphabet = "abcdefghijklmnop"

	routingFiller = "XXXXXXX"
	redacted      = "[REDACTED]"
)

// ErrEmptySalt is returned when a pseudonymizer is built without a secret.
var ErrEmptySalt = errors.New("privacy: salt must not be empty")

// Pseudonymizer derives stable opaque identifiers keyed by the process salt.
// It is immutable after construction and safe for concurrent use.
type Pseudonymizer struct {
	key []byte
}

// NewPseudonymizer copies salt into a new pseudonymizer.
func NewPseudonymizer(salt []byte) (*Pseudonymizer, error) {
	if len(salt) == 0 {
		return nil, ErrEmptySalt
	}
	key := make([]byte, len(salt))
	copy(key, salt)
	return &Pseudonymizer{key: key}, nil
}

// Pseudonymize returns "<prefix>:<digest>" for value. The same value and salt
// always produce the same token.
func (p *Pseudonymizer) Pseudonymize(value, prefix string) string {
	mac := hmac.New(sha256.New, p.key)
	mac.Write([]byte(value))
	sum := mac.Sum(nil)

	var b strings.Builder
	b.Grow(len(prefix) + 1 + digestBytes*2)
	b.WriteString(prefix)
	b.WriteByte(':')
	for _, c := range sum[:digestBytes] {
		b.WriteByte(pseudonymAlphabet[c>>4])
		b.WriteByte(pseudonymAlphabet[c&0x0f])
	}
	return b.String()
}

// PartialRevealToken renders the partial-reveal token of a value. Non
// alphanumeric characters are stripped before the window is taken.
func PartialRevealToken(value string, class Class) string {
	norm := strings.ToUpper(alphanumeric(value))
	prefix := PolicyFor(class).Prefix

	switch class {
	case ClassTaxID, ClassNationalID, ClassPhoneNumber:
		return prefix + ":" + lastN(norm, 4)
	case ClassBankRoutingCode:
		// The institution prefix is public; the branch suffix is not.
		return prefix + ":" + firstN(norm, 4) + routingFiller
	default:
		return redacted
	}
}

// normalize prepares a value for pseudonymization so that formatting
// differences do not split one identity across several pseudonyms.
func normalize(value string, class Class) string {
	switch class {
	case ClassEmailAddress:
		return strings.ToLower(strings.TrimSpace(value))
	default:
		return strings.ToUpper(alphanumeric(value))
	}
}

func alphanumeric(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, s)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
