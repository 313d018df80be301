package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hugh/medpocket/internal/database/models"
	"github.com/hugh/medpocket/internal/llm"
	"github.com/hugh/medpocket/internal/llm/llmtest"
	"github.com/hugh/medpocket/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func cardsJSON(titles ...string) string {
	cards := make([]map[string]any, len(titles))
	for i, title := range titles {
		cards[i] = map[string]any{
			"title":   title,
			"content": "<p>" + title + " overview</p>",
			"sources": []string{"UpToDate"},
		}
	}
	b, _ := json.Marshal(cards)
	return string(b)
}

// uniqueTitles replies with per fresh titles on every call.
func uniqueTitles(per int) llmtest.Func {
	n := 0
	return func(ctx context.Context, req llm.ChatRequest) (string, error) {
		titles := make([]string, per)
		for i := range titles {
			n++
			titles[i] = fmt.Sprintf("Topic %d", n)
		}
		return cardsJSON(titles...), nil
	}
}

type countingCompleter struct {
	next     llm.ChatCompleter
	requests []llm.ChatRequest
}

func (c *countingCompleter) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	c.requests = append(c.requests, req)
	return c.next.Chat(ctx, req)
}

type fakeRecorder struct {
	batches  map[string]int
	accepted int
	dropped  int
}

func (f *fakeRecorder) ObserveGenerationBatch(mode, result string, accepted int) {
	if f.batches == nil {
		f.batches = make(map[string]int)
	}
	f.batches[result]++
	f.accepted += accepted
}

func (f *fakeRecorder) ObserveScopeFiltered(dropped int) { f.dropped += dropped }

func newTestSession(c llm.ChatCompleter, hooks Hooks) *Session {
	return NewSession(c, DefaultConfig(), hooks, util.Discard())
}

func titlesOf(cards []models.GeneratedCard) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Title
	}
	return out
}

func TestSession_ExactTargetAndEarlyHalt(t *testing.T) {
	client := &countingCompleter{next: uniqueTitles(25)}
	rec := &fakeRecorder{}
	s := newTestSession(client, Hooks{Recorder: rec})

	res, err := s.Run(context.Background(), Request{Prompt: "Generate 30 cards on obstetric emergencies"})
	require.NoError(t, err)

	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, ModePrompt, res.Mode)
	assert.Equal(t, 30, res.Target)
	assert.Len(t, res.Cards, 30, "surplus from the last batch is truncated")
	assert.Equal(t, 2, res.Batches)
	assert.Len(t, client.requests, 2, "no call after the target is reached")
	assert.Equal(t, 30, rec.accepted)
	assert.Equal(t, 2, rec.batches["ok"])

	assert.Contains(t, client.requests[0].Messages[0].Content, "Generate exactly 20 cards.")
	assert.Contains(t, client.requests[1].Messages[0].Content, "Generate exactly 5 cards.")
	assert.Contains(t, client.requests[1].Messages[1].Content, "- Topic 1\n")
}

func TestSession_CeilingCapsDefaultTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ceiling = 15
	client := &countingCompleter{next: uniqueTitles(10)}
	s := NewSession(client, cfg, Hooks{}, util.Discard())

	res, err := s.Run(context.Background(), Request{Prompt: "Cards about labour"})
	require.NoError(t, err)
	assert.Len(t, res.Cards, 15)
	assert.Len(t, client.requests, 2)
}

func TestSession_CrossBatchDedup(t *testing.T) {
	client := llmtest.NewScripted(
		llmtest.Reply{Text: cardsJSON("Placenta previa", "Vasa previa")},
		llmtest.Reply{Text: cardsJSON("  PLACENTA   previa ", "Abruption")},
		llmtest.Reply{Text: cardsJSON("Uterine rupture")},
	)
	s := newTestSession(client, Hooks{})

	res, err := s.Run(context.Background(), Request{Prompt: "Make 4 cards on third-trimester bleeding"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Placenta previa", "Vasa previa", "Abruption", "Uterine rupture"}, titlesOf(res.Cards))
	assert.Equal(t, 3, client.Calls())
}

func TestSession_StopsWhenBatchesStall(t *testing.T) {
	client := llmtest.NewScripted(llmtest.Reply{Text: cardsJSON("Same A", "Same B")})
	s := newTestSession(client, Hooks{})

	res, err := s.Run(context.Background(), Request{Prompt: "Generate 10 cards"})
	require.NoError(t, err)

	assert.Len(t, res.Cards, 2)
	assert.Equal(t, 3, client.Calls(), "one productive batch then two empty ones")
}

func TestSession_FirstBatchFailureReturnsToIdle(t *testing.T) {
	upstream := &llm.ProviderError{Provider: "openrouter", StatusCode: 502, Message: "bad gateway"}
	client := llmtest.NewScripted(llmtest.Reply{Err: upstream})
	s := newTestSession(client, Hooks{})

	res, err := s.Run(context.Background(), Request{Prompt: "Generate 5 cards"})
	require.Error(t, err)

	var perr *llm.ProviderError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, StateIdle, res.State)
	assert.Empty(t, res.Cards)
	assert.Nil(t, s.Result())
}

func TestSession_FailureWithNothingAccumulatedReturnsToIdle(t *testing.T) {
	client := llmtest.NewScripted(
		llmtest.Reply{Text: "garbage"},
		llmtest.Reply{Err: errors.New("boom")},
	)
	s := newTestSession(client, Hooks{})

	res, err := s.Run(context.Background(), Request{Prompt: "Generate 5 cards"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, StateIdle, res.State)
	assert.Empty(t, res.Cards)
	assert.Len(t, res.BatchErrors, 1)
	assert.Nil(t, s.Result())
}

func TestSession_LaterFailureKeepsPartialResults(t *testing.T) {
	client := llmtest.NewScripted(
		llmtest.Reply{Text: cardsJSON("A", "B")},
		llmtest.Reply{Err: errors.New("connection reset")},
	)
	s := newTestSession(client, Hooks{})

	res, err := s.Run(context.Background(), Request{Prompt: "Generate 5 cards"})
	require.NoError(t, err)

	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, []string{"A", "B"}, titlesOf(res.Cards))
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "connection reset")
}

func TestSession_UnparseableBatchIsSkipped(t *testing.T) {
	rec := &fakeRecorder{}
	client := llmtest.NewScripted(
		llmtest.Reply{Text: "Sorry, I can't produce JSON right now."},
		llmtest.Reply{Text: cardsJSON("A", "B", "C")},
	)
	s := newTestSession(client, Hooks{Recorder: rec})

	res, err := s.Run(context.Background(), Request{Prompt: "Generate 3 cards"})
	require.NoError(t, err)

	assert.Len(t, res.Cards, 3)
	require.Len(t, res.BatchErrors, 1)
	assert.Contains(t, res.BatchErrors[0], "batch 1")
	assert.Equal(t, 1, rec.batches["unparseable"])
}

func TestSession_ScopeFilter(t *testing.T) {
	reply := `[
		{"title":"Labetalol","content":"<p>200 mg PO BID</p>"},
		{"title":"Pelvic anatomy","content":"<p>Anatomy of the bony pelvis</p>"}
	]`

	t.Run("prescription request drops anatomy", func(t *testing.T) {
		rec := &fakeRecorder{}
		s := newTestSession(llmtest.NewScripted(llmtest.Reply{Text: reply}), Hooks{Recorder: rec})

		res, err := s.Run(context.Background(), Request{Prompt: "Make 2 prescription cards for hypertension in pregnancy"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Labetalol"}, titlesOf(res.Cards))
		assert.Equal(t, 1, rec.dropped)
	})

	t.Run("general request keeps both", func(t *testing.T) {
		s := newTestSession(llmtest.NewScripted(llmtest.Reply{Text: reply}), Hooks{})

		res, err := s.Run(context.Background(), Request{Prompt: "Make 2 cards for hypertension in pregnancy"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Labetalol", "Pelvic anatomy"}, titlesOf(res.Cards))
	})
}

func TestSession_ListModeFillsGaps(t *testing.T) {
	client := &countingCompleter{next: llmtest.NewScripted(
		llmtest.Reply{Text: cardsJSON("Estradiol", "Progesterone")},
		llmtest.Reply{Text: cardsJSON("Letrozole")},
	)}
	s := newTestSession(client, Hooks{})

	res, err := s.Run(context.Background(), Request{
		Prompt: "Cards for:\n- Estradiol\n- Progesterone\n- Letrozole",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeList, res.Mode)
	assert.Equal(t, []string{"Estradiol", "Progesterone", "Letrozole"}, titlesOf(res.Cards))
	require.Len(t, client.requests, 2)

	retry := client.requests[1].Messages[1].Content
	assert.Contains(t, retry, "nothing else:\n- Letrozole")
	assert.NotContains(t, retry, "nothing else:\n- Estradiol")
}

func TestSession_ListModeGivesUpAfterRounds(t *testing.T) {
	client := llmtest.NewScripted(llmtest.Reply{Text: cardsJSON("Something else")})
	s := newTestSession(client, Hooks{})

	res, err := s.Run(context.Background(), Request{Prompt: "- Oxytocin\n- Carboprost"})
	require.NoError(t, err)

	assert.Len(t, res.Cards, 1)
	assert.Equal(t, 1+DefaultConfig().GapFillRounds, client.Calls())
}

func TestSession_DocumentChunks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize = 20
	client := &countingCompleter{next: uniqueTitles(2)}

	var states []State
	s := NewSession(client, cfg, Hooks{Progress: func(p Progress) {
		if len(states) == 0 || states[len(states)-1] != p.State {
			states = append(states, p.State)
		}
	}}, util.Discard())

	doc := strings.Join([]string{
		"Preeclampsia is hypertension after 20 weeks.",
		"Eclampsia adds seizures.",
		"HELLP is hemolysis and low platelets.",
	}, "\n\n")

	res, err := s.Run(context.Background(), Request{Prompt: "Summarize", Document: doc, Section: "consultations"})
	require.NoError(t, err)

	assert.Equal(t, ModeDocument, res.Mode)
	assert.Len(t, client.requests, 3)
	assert.Len(t, res.Cards, 6)
	for _, c := range res.Cards {
		assert.Equal(t, []string{"consultations"}, c.Sections)
	}
	assert.Contains(t, client.requests[0].Messages[1].Content, "Based on this document:")
	assert.Contains(t, client.requests[2].Messages[0].Content, "This is chunk 3 of 3.")

	assert.Equal(t, []State{
		StateChunking, StateBatching, StateGenerating, StateDeduplicating, StateScopeFiltering, StateReady,
	}, states)
}

func TestSession_Save(t *testing.T) {
	client := llmtest.NewScripted(llmtest.Reply{Text: cardsJSON("A", "B", "C")})
	s := newTestSession(client, Hooks{})
	ctx := context.Background()

	assert.ErrorIs(t, s.Save(ctx, []int{0}, nil), ErrNotReady)

	_, err := s.Run(ctx, Request{Prompt: "Generate 3 cards"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Save(ctx, nil, nil), ErrNothingSelected)
	assert.ErrorIs(t, s.Save(ctx, []int{5}, nil), ErrInvalidSelection)

	failing := func(context.Context, []models.GeneratedCard) error { return errors.New("db down") }
	require.Error(t, s.Save(ctx, []int{0}, failing))
	assert.Equal(t, StateReady, s.State())

	var saved []models.GeneratedCard
	err = s.Save(ctx, []int{2, 0, 2}, func(_ context.Context, cards []models.GeneratedCard) error {
		assert.Equal(t, StateSaving, s.State())
		saved = cards
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C"}, titlesOf(saved))
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Result())
}

func TestSession_RejectsEmptyRequest(t *testing.T) {
	s := newTestSession(llmtest.NewScripted(), Hooks{})
	_, err := s.Run(context.Background(), Request{Prompt: "  "})
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{PromptBatchSize: 5}.withDefaults()
	assert.Equal(t, 5, cfg.PromptBatchSize)
	assert.Equal(t, 200, cfg.Ceiling)
	assert.Equal(t, 2, cfg.StallLimit)
}
