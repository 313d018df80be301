// Package generation turns one free-form request, optionally backed by a
// document, into a set of unique AI-written cards through sequential batched
// completions.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/llm"
	"github.com/hugh/medpocket/pkg/config"
)

type State string

const (
	StateIdle           State = "idle"
	StateChunking       State = "chunking"
	StateBatching       State = "batching"
	StateGenerating     State = "generating"
	StateDeduplicating  State = "deduplicating"
	StateScopeFiltering State = "scope_filtering"
	StateReady          State = "ready"
	StateSaving         State = "saving"
)

var (
	ErrEmptyRequest     = errors.New("a prompt or a document is required")
	ErrSessionBusy      = errors.New("generation session is busy")
	ErrNotReady         = errors.New("no generated cards to save")
	ErrNothingSelected  = errors.New("select at least one card to save")
	ErrInvalidSelection = errors.New("selected card index out of range")
)

// Config bounds a session. Zero fields take the defaults.
type Config struct {
	DefaultTarget     int
	Ceiling           int
	PromptBatchSize   int
	DocumentBatchSize int
	ListBatchSize     int
	ChunkSize         int
	GapFillRounds     int
	StallLimit        int

	Model       string
	Temperature float64
	MaxTokens   int
}

func DefaultConfig() Config {
	return Config{
		DefaultTarget:     50,
		Ceiling:           200,
		PromptBatchSize:   20,
		DocumentBatchSize: 20,
		ListBatchSize:     10,
		ChunkSize:         15000,
		GapFillRounds:     3,
		StallLimit:        2,
		Temperature:       0.7,
		MaxTokens:         16000,
	}
}

// ConfigFrom maps application settings onto a session config.
func ConfigFrom(g config.GenerationConfig, l config.LLMConfig) Config {
	return Config{
		DefaultTarget:     g.DefaultTarget,
		Ceiling:           g.Ceiling,
		PromptBatchSize:   g.PromptBatchSize,
		DocumentBatchSize: g.DocumentBatchSize,
		ListBatchSize:     g.ListBatchSize,
		ChunkSize:         g.ChunkSize,
		GapFillRounds:     g.GapFillRounds,
		Model:             l.Model,
		Temperature:       l.Temperature,
		MaxTokens:         l.MaxTokens,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	pick := func(v, def int) int {
		if v > 0 {
			return v
		}
		return def
	}
	c.DefaultTarget = pick(c.DefaultTarget, d.DefaultTarget)
	c.Ceiling = pick(c.Ceiling, d.Ceiling)
	c.PromptBatchSize = pick(c.PromptBatchSize, d.PromptBatchSize)
	c.DocumentBatchSize = pick(c.DocumentBatchSize, d.DocumentBatchSize)
	c.ListBatchSize = pick(c.ListBatchSize, d.ListBatchSize)
	c.ChunkSize = pick(c.ChunkSize, d.ChunkSize)
	c.GapFillRounds = pick(c.GapFillRounds, d.GapFillRounds)
	c.StallLimit = pick(c.StallLimit, d.StallLimit)
	c.MaxTokens = pick(c.MaxTokens, d.MaxTokens)
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	return c
}

// Request is one user submission. Section, when set, files every card
// under that section.
type Request struct {
	Prompt   string
	Document string
	Section  string
}

type Progress struct {
	State     State
	Batch     int
	Generated int
	Target    int
}

// Recorder receives per-batch and scope-filter observations.
type Recorder interface {
	ObserveGenerationBatch(mode, result string, accepted int)
	ObserveScopeFiltered(dropped int)
}

type Hooks struct {
	Progress func(Progress)
	Recorder Recorder
}

// Result is what a run produced. Err is set when a provider failure
// stopped the loop after at least one batch had been attempted.
type Result struct {
	State       State
	Mode        Mode
	Cards       []models.GeneratedCard
	Target      int
	Batches     int
	BatchErrors []string
	Err         error
}

// Session drives the state machine for one user. It is not safe for
// concurrent use; calls to the provider are strictly sequential.
type Session struct {
	client llm.ChatCompleter
	cfg    Config
	hooks  Hooks
	logger *slog.Logger

	state  State
	result *Result
}

func NewSession(client llm.ChatCompleter, cfg Config, hooks Hooks, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client: client,
		cfg:    cfg.withDefaults(),
		hooks:  hooks,
		logger: logger,
		state:  StateIdle,
	}
}

func (s *Session) State() State { return s.state }

// Result returns the cards of the last run, nil before a run or after Save.
func (s *Session) Result() *Result { return s.result }

// Reset discards any previewed cards.
func (s *Session) Reset() {
	s.result = nil
	s.state = StateIdle
}

// Run generates cards for req. A provider failure before any card has been
// accumulated returns the session to idle with an error. Later failures keep
// the cards accumulated so far and land in ready with Result.Err set.
func (s *Session) Run(ctx context.Context, req Request) (*Result, error) {
	if s.state != StateIdle && s.state != StateReady {
		return nil, ErrSessionBusy
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Document = strings.TrimSpace(req.Document)
	if req.Prompt == "" && req.Document == "" {
		return nil, ErrEmptyRequest
	}
	s.result = nil

	r := &run{
		s:    s,
		req:  req,
		seen: make(titleSet),
	}
	r.plan = ResolveTarget(req.Prompt, s.cfg.DefaultTarget, s.cfg.Ceiling)
	if req.Document != "" {
		r.plan = Plan{Mode: ModeDocument, Target: r.plan.Target}
	}
	r.result = &Result{
		Mode:   r.plan.Mode,
		Target: r.plan.Target,
		Cards:  []models.GeneratedCard{},
	}

	var chunks []string
	if req.Document != "" {
		if len([]rune(req.Document)) > s.cfg.ChunkSize {
			s.setState(StateChunking, r)
			chunks = SplitDocument(req.Document, s.cfg.ChunkSize)
		} else {
			chunks = []string{req.Document}
		}
	}

	s.setState(StateBatching, r)
	s.logger.Info("generation started",
		"mode", r.plan.Mode,
		"target", r.plan.Target,
		"chunks", len(chunks),
		"items", len(r.plan.Items),
	)

	if err := r.generate(ctx, chunks); err != nil {
		if r.result.Batches <= 1 || len(r.result.Cards) == 0 {
			r.result.State = StateIdle
			r.result.Err = err
			s.setState(StateIdle, r)
			return r.result, fmt.Errorf("generating cards: %w", err)
		}
		r.result.Err = err
		s.logger.Warn("generation stopped early", "error", err, "generated", len(r.result.Cards))
	}

	s.setState(StateDeduplicating, r)
	r.result.Cards = Dedup(r.result.Cards)

	s.setState(StateScopeFiltering, r)
	before := len(r.result.Cards)
	r.result.Cards = FilterByScope(r.result.Cards, req.Prompt)
	if dropped := before - len(r.result.Cards); dropped > 0 {
		s.logger.Info("scope filter dropped cards", "dropped", dropped, "kept", len(r.result.Cards))
		if s.hooks.Recorder != nil {
			s.hooks.Recorder.ObserveScopeFiltered(dropped)
		}
	}

	r.result.State = StateReady
	s.result = r.result
	s.setState(StateReady, r)
	return r.result, nil
}

// Save persists the selected previews through save. The session returns
// to idle on success and stays ready on failure.
func (s *Session) Save(ctx context.Context, indexes []int, save func(context.Context, []models.GeneratedCard) error) error {
	if s.state != StateReady || s.result == nil {
		return ErrNotReady
	}
	selected, err := Select(s.result.Cards, indexes)
	if err != nil {
		return err
	}

	s.state = StateSaving
	if err := save(ctx, selected); err != nil {
		s.state = StateReady
		return fmt.Errorf("saving generated cards: %w", err)
	}
	s.Reset()
	return nil
}

// Select returns the cards at indexes in their generated order, ignoring
// repeated indexes.
func Select(cards []models.GeneratedCard, indexes []int) ([]models.GeneratedCard, error) {
	if len(indexes) == 0 {
		return nil, ErrNothingSelected
	}
	sorted := slices.Clone(indexes)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make([]models.GeneratedCard, 0, len(sorted))
	for _, i := range sorted {
		if i < 0 || i >= len(cards) {
			return nil, fmt.Errorf("%w: %d", ErrInvalidSelection, i)
		}
		out = append(out, cards[i])
	}
	return out, nil
}

func (s *Session) setState(st State, r *run) {
	s.state = st
	r.emit()
}

type run struct {
	s      *Session
	req    Request
	plan   Plan
	seen   titleSet
	result *Result
}

func (r *run) emit() {
	if r.s.hooks.Progress == nil || r.result == nil {
		return
	}
	r.s.hooks.Progress(Progress{
		State:     r.s.state,
		Batch:     r.result.Batches,
		Generated: len(r.result.Cards),
		Target:    r.plan.Target,
	})
}

func (r *run) remaining() int {
	return r.plan.Target - len(r.result.Cards)
}

func (r *run) full() bool {
	return r.remaining() <= 0
}

func (r *run) generate(ctx context.Context, chunks []string) error {
	switch r.plan.Mode {
	case ModeDocument:
		return r.generateDocument(ctx, chunks)
	case ModeList:
		if err := r.generateItems(ctx, r.plan.Items); err != nil {
			return err
		}
		return r.fillGaps(ctx)
	default:
		return r.generatePrompt(ctx)
	}
}

func (r *run) generatePrompt(ctx context.Context) error {
	stalls := 0
	for !r.full() {
		added, err := r.batch(ctx, batchPrompt{
			mode:     ModePrompt,
			count:    min(r.s.cfg.PromptBatchSize, r.remaining()),
			existing: r.titles(),
		})
		if err != nil {
			return err
		}
		if added > 0 {
			stalls = 0
			continue
		}
		stalls++
		if stalls >= r.s.cfg.StallLimit {
			r.s.logger.Info("generation stalled", "generated", len(r.result.Cards), "target", r.plan.Target)
			return nil
		}
	}
	return nil
}

func (r *run) generateDocument(ctx context.Context, chunks []string) error {
	total := 0
	if len(chunks) > 1 {
		total = len(chunks)
	}
	for i, chunk := range chunks {
		if r.full() {
			return nil
		}
		_, err := r.batch(ctx, batchPrompt{
			mode:       ModeDocument,
			count:      min(r.s.cfg.DocumentBatchSize, r.remaining()),
			chunk:      chunk,
			chunkIndex: i,
			chunkTotal: total,
			existing:   r.titles(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) generateItems(ctx context.Context, items []string) error {
	size := r.s.cfg.ListBatchSize
	for start := 0; start < len(items); start += size {
		if r.full() {
			return nil
		}
		end := min(start+size, len(items))
		if _, err := r.batch(ctx, batchPrompt{
			mode:  ModeList,
			count: end - start,
			items: items[start:end],
		}); err != nil {
			return err
		}
	}
	return nil
}

// fillGaps retries list items no card covers yet.
func (r *run) fillGaps(ctx context.Context) error {
	for round := 1; round <= r.s.cfg.GapFillRounds; round++ {
		missing := MissingItems(r.plan.Items, r.result.Cards)
		if len(missing) == 0 || len(r.result.Cards) >= r.s.cfg.Ceiling {
			return nil
		}
		r.s.logger.Info("filling list gaps", "round", round, "missing", len(missing))

		// Gap cards may exceed the item count when earlier cards only
		// partially covered the list; the ceiling still holds.
		r.plan.Target = min(len(r.result.Cards)+len(missing), r.s.cfg.Ceiling)
		if err := r.generateItems(ctx, missing); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) titles() []string {
	out := make([]string, len(r.result.Cards))
	for i, c := range r.result.Cards {
		out[i] = c.Title
	}
	return out
}

// batch issues one completion. A provider error is returned; an
// unparseable completion is recorded and counts as zero new cards.
func (r *run) batch(ctx context.Context, bp batchPrompt) (int, error) {
	bp.request = r.req.Prompt
	bp.section = r.req.Section

	r.result.Batches++
	r.s.setState(StateGenerating, r)

	temp := r.s.cfg.Temperature
	completion, err := r.s.client.Chat(ctx, llm.ChatRequest{
		Messages:    bp.messages(),
		Model:       r.s.cfg.Model,
		Temperature: &temp,
		MaxTokens:   r.s.cfg.MaxTokens,
	})
	if err != nil {
		r.observe("error", 0)
		return 0, fmt.Errorf("batch %d: %w", r.result.Batches, err)
	}

	parsed, err := ParseBatch(completion)
	if err != nil {
		msg := fmt.Sprintf("batch %d: %v", r.result.Batches, err)
		r.result.BatchErrors = append(r.result.BatchErrors, msg)
		r.s.logger.Warn("generation batch unparseable", "batch", r.result.Batches, "mode", bp.mode)
		r.observe("unparseable", 0)
		r.emit()
		return 0, nil
	}

	added := 0
	for _, c := range parsed {
		if r.full() {
			break
		}
		if r.req.Section != "" {
			c.Sections = []string{r.req.Section}
		}
		if !r.seen.add(c.Title) {
			continue
		}
		r.result.Cards = append(r.result.Cards, c)
		added++
	}

	r.s.logger.Info("generation batch",
		"batch", r.result.Batches,
		"mode", bp.mode,
		"returned", len(parsed),
		"accepted", added,
		"total", len(r.result.Cards),
		"target", r.plan.Target,
	)
	r.observe("ok", added)
	r.emit()
	return added, nil
}

func (r *run) observe(result string, accepted int) {
	if r.s.hooks.Recorder != nil {
		r.s.hooks.Recorder.ObserveGenerationBatch(string(r.plan.Mode), result, accepted)
	}
}
