package generation

import (
	"strings"
	"testing"

	"github.com/hugh/medpocket/internal/database/models"
	"github.com/stretchr/testify/assert"
)

func TestSplitDocument(t *testing.T) {
	t.Run("short text is one chunk", func(t *testing.T) {
		assert.Equal(t, []string{"a\n\nb"}, SplitDocument("a\n\nb", 100))
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Nil(t, SplitDocument("  \n ", 100))
	})

	t.Run("packs paragraphs greedily", func(t *testing.T) {
		doc := "aaaa\n\nbbbb\n\ncccc\n\ndddd"
		assert.Equal(t, []string{"aaaa\n\nbbbb", "cccc\n\ndddd"}, SplitDocument(doc, 10))
	})

	t.Run("oversize paragraph is kept whole", func(t *testing.T) {
		long := strings.Repeat("x", 25)
		doc := "aa\n\n" + long + "\n\nbb"

		chunks := SplitDocument(doc, 10)
		assert.Equal(t, []string{"aa", long, "bb"}, chunks)
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		doc := "ééééé\n\nààààà"
		assert.Equal(t, []string{doc}, SplitDocument(doc, 12))
	})
}

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name    string
		request string
		mode    Mode
		target  int
		items   []string
	}{
		{"default", "Create cards on postpartum care", ModePrompt, 50, nil},
		{"top n", "Give me the top 75 obstetric drugs", ModePrompt, 75, nil},
		{"n cards", "Generate 30 cards on contraception", ModePrompt, 30, nil},
		{"n adjective cards", "Make 12 prescription cards", ModePrompt, 12, nil},
		{"capped at ceiling", "Generate 500 cards", ModePrompt, 200, nil},
		{
			"bullet list",
			"Cards for:\n- Estradiol\n* Levonorgestrel\n• Norethindrone\n- Estradiol",
			ModeList, 3, []string{"Estradiol", "Levonorgestrel", "Norethindrone"},
		},
		{
			"numbered list",
			"1. Oxytocin\n2) Carboprost",
			ModeList, 2, []string{"Oxytocin", "Carboprost"},
		},
		{"single item is not a list", "- Oxytocin", ModePrompt, 50, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := ResolveTarget(tt.request, 50, 200)
			assert.Equal(t, tt.mode, plan.Mode)
			assert.Equal(t, tt.target, plan.Target)
			assert.Equal(t, tt.items, plan.Items)
		})
	}
}

func TestWantsPrescriptions(t *testing.T) {
	tests := []struct {
		request string
		want    bool
	}{
		{"prescriptions only for preeclampsia", true},
		{"Dosing of magnesium", true},
		{"oxytocin 10 IU IM", true},
		{"500mg amoxicillin", true},
		{"antibiotics q8h", true},
		{"Summarize imaging in pregnancy", false},
		{"Describe pelvic anatomy", false},
		{"important topics in surgery", false},
	}

	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			assert.Equal(t, tt.want, WantsPrescriptions(tt.request))
		})
	}
}

func TestFilterByScope(t *testing.T) {
	cards := []models.GeneratedCard{
		{Title: "Estradiol", Content: "<p>1 mg PO daily for vasomotor symptoms</p>"},
		{Title: "Pelvic anatomy", Content: "<p>The pelvis is formed by two hip bones.</p>"},
		{Title: "Letrozole", Content: "<p>Anatomy-based dosing is not required</p>"},
		{Title: "Endometrial cancer", Content: "<p>Stage management: progestins 160 mg daily</p>"},
		{Title: "Cervical cancer", Content: "<p>Stage IB disease</p>"},
		{Title: "Preeclampsia", Content: "<p>Labetalol 200 mg PO BID</p>"},
	}

	t.Run("prescription request drops out-of-scope cards", func(t *testing.T) {
		got := FilterByScope(cards, "prescriptions for gynecology")

		var titles []string
		for _, c := range got {
			titles = append(titles, c.Title)
		}
		assert.Equal(t, []string{"Estradiol", "Letrozole", "Endometrial cancer", "Preeclampsia"}, titles)
	})

	t.Run("other requests keep everything", func(t *testing.T) {
		assert.Equal(t, cards, FilterByScope(cards, "review of gynecology"))
	})
}

func TestConstraints(t *testing.T) {
	assert.Contains(t, Constraints("prescriptions please"), "STRICT")
	assert.Equal(t, defaultConstraints, Constraints("summaries please"))
}

func TestDedupAndCoverage(t *testing.T) {
	cards := []models.GeneratedCard{
		{Title: "Oxytocin", Content: "<p>Uterotonic</p>"},
		{Title: "  OXYTOCIN ", Content: "<p>dup</p>"},
		{Title: "Carboprost  tromethamine", Content: "<p>Second line, with <b>misoprostol</b> as an alternative</p>"},
	}

	deduped := Dedup(cards)
	assert.Len(t, deduped, 2)
	assert.Equal(t, "Oxytocin", deduped[0].Title)

	missing := MissingItems([]string{"Oxytocin", "Misoprostol", "Tranexamic acid"}, deduped)
	assert.Equal(t, []string{"Tranexamic acid"}, missing)
}
