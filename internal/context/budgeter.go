package context

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
)

// Budgeter estimates token cost and checks it against a ceiling.
type Budgeter interface {
	Estimate(text string) int
	Fits(candidate string, currentUsage, ceiling int) bool
}

// TokenBudgeter counts tokens with a BPE encoding when one is available and
// falls back to the conservative heuristic otherwise. Counts are cached.
type TokenBudgeter struct {
	enc      *tiktoken.Tiktoken
	encoding string

	mu       sync.Mutex
	cache    map[string]*list.Element // content hash -> list element
	lruList  *list.List               // front = most recent
	maxCache int
}

type cacheEntry struct {
	key    string
	tokens int
}

// NewBudgeter loads the named tiktoken encoding. An empty name, or an encoding
// that cannot be loaded, selects the heuristic.
func NewBudgeter(encoding string) *TokenBudgeter {
	b := newBudgeter()
	if encoding == "" {
		return b
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logging.Warn("budgeter: tokenizer unavailable, using heuristic estimate",
			"encoding", encoding,
			"error", err.Error())
		return b
	}
	b.enc = enc
	b.encoding = encoding
	return b
}

// NewHeuristicBudgeter returns a budgeter that never loads a tokenizer.
func NewHeuristicBudgeter() *TokenBudgeter {
	return newBudgeter()
}

func newBudgeter() *TokenBudgeter {
	return &TokenBudgeter{
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
		maxCache: 1000,
	}
}

// Encoding returns the tokenizer in use, or "heuristic".
func (b *TokenBudgeter) Encoding() string {
	if b.enc == nil {
		return "heuristic"
	}
	return b.encoding
}

// Estimate returns the token count of text.
func (b *TokenBudgeter) Estimate(text string) int {
	if text == "" {
		return 0
	}

	key := hashText(text)
	if n, ok := b.getFromCache(key); ok {
		return n
	}

	var n int
	if b.enc != nil {
		n = len(b.enc.Encode(text, nil, nil))
	} else {
		n = EstimateTokens(text)
	}
	b.addToCache(key, n)
	return n
}

// Fits reports whether candidate can be added to currentUsage without exceeding ceiling.
func (b *TokenBudgeter) Fits(candidate string, currentUsage, ceiling int) bool {
	return currentUsage+b.Estimate(candidate) <= ceiling
}

func (b *TokenBudgeter) getFromCache(key string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elem, ok := b.cache[key]; ok {
		b.lruList.MoveToFront(elem)
		return elem.Value.(*cacheEntry).tokens, true
	}
	return 0, false
}

func (b *TokenBudgeter) addToCache(key string, tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elem, ok := b.cache[key]; ok {
		b.lruList.MoveToFront(elem)
		elem.Value.(*cacheEntry).tokens = tokens
		return
	}

	if b.lruList.Len() >= b.maxCache {
		if oldest := b.lruList.Back(); oldest != nil {
			delete(b.cache, oldest.Value.(*cacheEntry).key)
			b.lruList.Remove(oldest)
		}
	}

	b.cache[key] = b.lruList.PushFront(&cacheEntry{key: key, tokens: tokens})
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
