// Package llmtest provides deterministic in-process stand-ins for the
// embedding and generation provider.
package llmtest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// HashEmbedder embeds text as a normalized bag of words: every lowercase
// token adds its weight to the bucket its FNV hash selects. Texts sharing
// most tokens embed close together.
type HashEmbedder struct {
	Dims    int                // Number of buckets, 256 when zero
	Weights map[string]float64 // Per-token weight overrides, 1 otherwise

	mu        sync.Mutex
	calls     int
	manyCalls int
}

// Embed returns the embedding of a single text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.vector(text), nil
}

// EmbedMany returns one embedding per text, in input order.
func (e *HashEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.manyCalls++
	e.mu.Unlock()

	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

// Calls returns how many Embed and EmbedMany calls were made.
func (e *HashEmbedder) Calls() (single, many int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls, e.manyCalls
}

func (e *HashEmbedder) vector(text string) []float64 {
	dims := e.Dims
	if dims <= 0 {
		dims = 256
	}
	v := make([]float64, dims)

	for _, token := range Tokens(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		weight := 1.0
		if w, ok := e.Weights[token]; ok {
			weight = w
		}
		v[int(h.Sum32()%uint32(dims))] += weight
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Tokens splits text into lowercase letter/digit runs.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ErrUnavailable is returned by FlakyEmbedder while failures remain.
var ErrUnavailable = errors.New("provider unavailable")

// FlakyEmbedder fails the first Failures calls and then delegates.
type FlakyEmbedder struct {
	Embedder interface {
		Embed(ctx context.Context, text string) ([]float64, error)
		EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
	}
	Failures int

	mu       sync.Mutex
	attempts int
}

func (f *FlakyEmbedder) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	return f.attempts <= f.Failures
}

// Attempts returns the number of calls made so far.
func (f *FlakyEmbedder) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Embed fails while failures remain, then delegates.
func (f *FlakyEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.fail() {
		return nil, ErrUnavailable
	}
	return f.Embedder.Embed(ctx, text)
}

// EmbedMany fails while failures remain, then delegates.
func (f *FlakyEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if f.fail() {
		return nil, ErrUnavailable
	}
	return f.Embedder.EmbedMany(ctx, texts)
}

// Generator records prompts and answers with a fixed reply or Reply(prompt).
type Generator struct {
	Answer string
	Reply  func(prompt string) string
	Err    error

	mu      sync.Mutex
	prompts []string
}

// Generate records the prompt and returns the configured answer or error.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.Err != nil {
		return "", g.Err
	}
	if g.Reply != nil {
		return g.Reply(prompt), nil
	}
	return g.Answer, nil
}

// Prompts returns every prompt received so far.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
