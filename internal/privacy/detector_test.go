package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorOrder(t *testing.T) {
	assert.Equal(t, []Class{
		ClassTaxID,
		ClassBankRoutingCode,
		ClassNationalID,
		ClassAccountNumber,
		ClassEmailAddress,
		ClassPhoneNumber,
	}, Classes())
}

func TestDetectorsReturnsCopy(t *testing.T) {
	ds := Detectors()
	ds[0] = Detector{Class: "mutated"}
	assert.Equal(t, ClassTaxID, Detectors()[0].Class)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		class  Class
		values []string
	}{
		{"tax id", "PAN ABCDE1234F on file", ClassTaxID, []string{"ABCDE1234F"}},
		{"tax id lower case", "pan abcde1234f", ClassTaxID, []string{"abcde1234f"}},
		{"tax id needs word boundary", "XABCDE1234F", ClassTaxID, nil},
		{"routing code", "IFSC SBIN0001234", ClassBankRoutingCode, []string{"SBIN0001234"}},
		{"routing code lower case", "ifsc hdfc0abc123", ClassBankRoutingCode, []string{"hdfc0abc123"}},
		{"national id spaced", "aadhaar 1234 5678 9012", ClassNationalID, []string{"1234 5678 9012"}},
		{"national id hyphenated", "aadhaar 1234-5678-9012", ClassNationalID, []string{"1234-5678-9012"}},
		{"national id first group split", "aadhaar 1234 56789012", ClassNationalID, []string{"1234 56789012"}},
		{"national id last group split", "aadhaar 12345678-9012", ClassNationalID, []string{"12345678-9012"}},
		{"national id needs grouping", "id 123456789012", ClassNationalID, nil},
		{"account", "acct 123456789012 and 9876543210", ClassAccountNumber, []string{"123456789012", "9876543210"}},
		{"account too short", "ref 123456789", ClassAccountNumber, nil},
		{"account too long", "ref 12345678901234567", ClassAccountNumber, nil},
		{"email", "write to a.b+c@mail.example.co", ClassEmailAddress, []string{"a.b+c@mail.example.co"}},
		{"phone with country code", "call +91 9876543210", ClassPhoneNumber, []string{"91 9876543210"}},
		{"phone glued to a word", "call x+91-9876543210x", ClassPhoneNumber, nil},
		{"phone bare", "call 9876543210", ClassPhoneNumber, []string{"9876543210"}},
		{"phone bad lead digit", "call 1876543210", ClassPhoneNumber, nil},
		{"empty", "", ClassTaxID, nil},
		{"unknown class", "ABCDE1234F", Class("passport"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := Detect(tt.text, tt.class)
			require.Len(t, matches, len(tt.values))
			for i, m := range matches {
				assert.Equal(t, tt.class, m.Class)
				assert.Equal(t, tt.values[i], m.Value)
				assert.Equal(t, tt.values[i], tt.text[m.Start:m.End])
			}
		})
	}
}

func TestDetectSpansAreOrderedAndDisjoint(t *testing.T) {
	text := "a 1111222233 b 4444555566 c 7777888899"
	matches := Detect(text, ClassAccountNumber)
	require.Len(t, matches, 3)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].End, matches[i].Start)
	}
}

func TestMatchString(t *testing.T) {
	d := Detectors()[0]
	assert.True(t, d.MatchString("pan ABCDE1234F"))
	assert.False(t, d.MatchString("nothing here"))
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"ascii untouched", "acct 123456789012", "acct 123456789012"},
		{"devanagari digits", "acct १२३४५६७८९०१२", "acct 123456789012"},
		{"fullwidth digits", "acct １２３４５６７８９０１２", "acct 123456789012"},
		{"fullwidth letters", "ＰＡＮ ＡＢＣＤＥ１２３４Ｆ", "PAN ABCDE1234F"},
		{"bengali digits", "৯৮৭৬", "9876"},
		{"other scripts kept", "खाता", "खाता"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.text))
		})
	}
}
