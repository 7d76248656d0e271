package embeddings

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

const (
	tokenPad = "[PAD]"
	tokenUnk = "[UNK]"
	tokenCls = "[CLS]"
	tokenSep = "[SEP]"

	maxWordChars = 100
)

// TokenizedInput represents tokenized text ready for model inference
type TokenizedInput struct {
	InputIDs      []int32
	AttentionMask []int32
	TokenTypeIDs  []int32
	Length        int
	Truncated     bool
}

// Tokenizer is a BERT-style WordPiece tokenizer.
type Tokenizer struct {
	vocab     map[string]int32
	maxLength int
	padID     int32
	unkID     int32
	clsID     int32
	sepID     int32
}

// LoadVocabulary reads a vocab.txt file: one token per line, the line number
// is the token id.
func LoadVocabulary(path string) (map[string]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int32)
	scanner := bufio.NewScanner(f)
	var id int32
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r")
		if token != "" {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return vocab, nil
}

// NewTokenizer creates a tokenizer over vocab. The vocabulary must contain the
// BERT special tokens.
func NewTokenizer(vocab map[string]int32, maxLength int) (*Tokenizer, error) {
	if maxLength < 3 {
		return nil, fmt.Errorf("%w: max_length must be at least 3", ErrConfigError)
	}

	t := &Tokenizer{vocab: vocab, maxLength: maxLength}
	for token, dst := range map[string]*int32{
		tokenPad: &t.padID,
		tokenUnk: &t.unkID,
		tokenCls: &t.clsID,
		tokenSep: &t.sepID,
	} {
		id, ok := vocab[token]
		if !ok {
			return nil, fmt.Errorf("%w: vocabulary is missing %s", ErrConfigError, token)
		}
		*dst = id
	}
	return t, nil
}

// Tokenize converts text into padded model inputs of length maxLength.
func (t *Tokenizer) Tokenize(text string) (*TokenizedInput, error) {
	words := basicTokenize(text)
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: no tokens in text", ErrTokenizationFailed)
	}

	ids := []int32{t.clsID}
	truncated := false
	for _, word := range words {
		pieces := t.wordPiece(word)
		if len(ids)+len(pieces) > t.maxLength-1 {
			truncated = true
			break
		}
		ids = append(ids, pieces...)
	}
	ids = append(ids, t.sepID)
	length := len(ids)

	input := &TokenizedInput{
		InputIDs:      make([]int32, t.maxLength),
		AttentionMask: make([]int32, t.maxLength),
		TokenTypeIDs:  make([]int32, t.maxLength),
		Length:        length,
		Truncated:     truncated,
	}
	for i := range input.InputIDs {
		if i < length {
			input.InputIDs[i] = ids[i]
			input.AttentionMask[i] = 1
		} else {
			input.InputIDs[i] = t.padID
		}
	}
	return input, nil
}

// wordPiece splits a word greedily into the longest vocabulary pieces.
func (t *Tokenizer) wordPiece(word string) []int32 {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []int32{t.unkID}
	}

	var pieces []int32
	for start := 0; start < len(runes); {
		end := len(runes)
		found := false
		var id int32
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if v, ok := t.vocab[sub]; ok {
				id, found = v, true
				break
			}
			end--
		}
		if !found {
			return []int32{t.unkID}
		}
		pieces = append(pieces, id)
		start = end
	}
	return pieces
}

// basicTokenize lower-cases text and splits it on whitespace and punctuation;
// each punctuation rune becomes its own word.
func basicTokenize(text string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}
