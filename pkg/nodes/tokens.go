package nodes

import (
	"log/slog"
	"sync"

	"github.com/aretw0/promptflow/internal/logging"
	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is used for models tiktoken does not know and for
// history windows, which have no model.
const defaultEncoding = "cl100k_base"

// Tokenizer counts the tokens model would see for text. An empty model
// selects the default encoding.
type Tokenizer interface {
	Count(model, text string) int
}

// TiktokenCounter counts tokens with the BPE encodings used by OpenAI
// models. Encodings are loaded on first use and cached. When an encoding
// cannot be loaded (tiktoken fetches it over the network unless
// TIKTOKEN_CACHE_DIR holds a copy) counts fall back to four bytes per token.
type TiktokenCounter struct {
	logger *slog.Logger

	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

var _ Tokenizer = (*TiktokenCounter)(nil)

// NewTiktokenCounter returns a counter that logs encoding load failures
// to logger.
func NewTiktokenCounter(logger *slog.Logger) *TiktokenCounter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TiktokenCounter{logger: logger, encodings: make(map[string]*tiktoken.Tiktoken)}
}

func (c *TiktokenCounter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc := c.encoding(model)
	if enc == nil {
		return approximateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// encoding returns the cached encoding for model. A failed load is cached
// as nil so the fetch is attempted once.
func (c *TiktokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodings[model]; ok {
		return enc
	}

	var (
		enc *tiktoken.Tiktoken
		err error
	)
	if model != "" {
		enc, err = tiktoken.EncodingForModel(model)
	}
	if model == "" || err != nil {
		enc, err = tiktoken.GetEncoding(defaultEncoding)
	}
	if err != nil {
		c.logger.Warn("token encoding unavailable, approximating", "model", model, "error", err)
		enc = nil
	}
	c.encodings[model] = enc
	return enc
}

// approximateTokens is the fallback count at four bytes per token.
func approximateTokens(s string) int {
	return (len(s) + 3) / 4
}
