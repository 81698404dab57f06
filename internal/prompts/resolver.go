package prompts

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// ExamKey is the key of the built-in exam instruction.
const ExamKey = "exam.tile"

//go:embed exam.tmpl
var examTemplate string

// Resolver holds registered prompts and renders them, optionally from an override file.
type Resolver struct {
	mu       sync.RWMutex
	embedded map[string]Prompt
	logger   *slog.Logger
}

// NewResolver creates a resolver with the built-in prompts registered.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		embedded: make(map[string]Prompt),
		logger:   logger,
	}
	r.Register(Prompt{
		Key:         ExamKey,
		Text:        examTemplate,
		Description: "Solve every fully visible exam question in a tile; decline truncated ones",
	})
	return r
}

// Register adds or replaces a prompt.
func (r *Resolver) Register(p Prompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Hash == "" {
		p.Hash = HashText(p.Text)
	}
	if p.Variables == nil {
		p.Variables = ExtractVariables(p.Text)
	}
	r.embedded[p.Key] = p
	r.logger.Debug("registered prompt", "key", p.Key, "vars", p.Variables)
}

// Get returns a registered prompt.
func (r *Resolver) Get(key string) (Prompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	return p, ok
}

// List returns all registered prompts sorted by key.
func (r *Resolver) List() []Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Prompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Resolve renders the prompt for key. A non-empty overridePath replaces the
// registered template with the file's contents.
func (r *Resolver) Resolve(key, overridePath string, data Data) (*Resolved, error) {
	text, source := "", SourceEmbedded
	if overridePath != "" {
		raw, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file: %w", err)
		}
		text, source = string(raw), SourceFile
	} else {
		p, ok := r.Get(key)
		if !ok {
			return nil, fmt.Errorf("prompt not found: %s", key)
		}
		text = p.Text
	}

	rendered, err := Render(key, text, data)
	if err != nil {
		return nil, err
	}

	res := &Resolved{
		Key:    key,
		Text:   rendered,
		Hash:   HashText(rendered),
		Source: source,
		Path:   overridePath,
	}
	r.logger.Debug("resolved prompt", "key", key, "source", source, "hash", res.Hash[:12])
	return res, nil
}
