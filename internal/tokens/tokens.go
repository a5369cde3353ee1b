// Package tokens counts model tokens in diffs and enforces size limits.
package tokens

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with the encoding of a model.
type Counter struct {
	codec tokenizer.Codec
	name  string
}

// NewCounter picks the codec for model. Models the tokenizer does not know
// fall back to cl100k_base.
func NewCounter(model string) (*Counter, error) {
	if model != "" {
		if c, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
			return &Counter{codec: c, name: model}, nil
		}
	}
	c, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "loading cl100k_base tokenizer")
	}
	return &Counter{codec: c, name: string(tokenizer.Cl100kBase)}, nil
}

// Name is the model or encoding the counter was built for.
func (c *Counter) Name() string { return c.name }

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "encoding text")
	}
	return len(ids), nil
}

// LimitError reports content over a configured limit.
type LimitError struct {
	Unit   string // "bytes" or "tokens"
	Limit  int
	Actual int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("diff is %d %s, limit is %d", e.Actual, e.Unit, e.Limit)
}

// Guard rejects oversized content. Zero limits are unlimited.
type Guard struct {
	MaxBytes  int
	MaxTokens int
	Counter   *Counter
}

// Measurement is what Check observed.
type Measurement struct {
	Bytes  int
	Tokens int // -1 when no counter is configured
}

// Check measures text and returns a *LimitError when a limit is exceeded.
// Bytes are checked first so huge inputs are never tokenized.
func (g Guard) Check(text string) (Measurement, error) {
	m := Measurement{Bytes: len(text), Tokens: -1}
	if g.MaxBytes > 0 && m.Bytes > g.MaxBytes {
		return m, &LimitError{Unit: "bytes", Limit: g.MaxBytes, Actual: m.Bytes}
	}
	if g.Counter == nil {
		if g.MaxTokens > 0 {
			return m, errors.New("token limit configured without a tokenizer")
		}
		return m, nil
	}
	n, err := g.Counter.Count(text)
	if err != nil {
		return m, err
	}
	m.Tokens = n
	if g.MaxTokens > 0 && n > g.MaxTokens {
		return m, &LimitError{Unit: "tokens", Limit: g.MaxTokens, Actual: n}
	}
	return m, nil
}
