package generation

import (
	"fmt"
	"strings"

	"github.com/hugh/medpocket/internal/llm"
)

const cardFormat = `HTML FORMAT REQUIREMENTS:
- Start content with <strong>🎯 Card Title</strong>
- Use <h3> with color (#1e40af), font-weight 600, and spacing
- Use emojis throughout (🔍 📋 ⚠️ 💊 🩺 ⚡ 🧪 📌 ✓ ❌)
- Use <strong> and <u> for key terms
- Use tables for comparisons (border='1', border-collapse: collapse; width:100%)
- Use <span style='color: #dc2626;'> for warnings
- Use <span style='background-color: #fef3c7;'> for highlights
- End with sources: <p><strong>📚 Sources:</strong> ...</p>`

const sourceRules = `SOURCES REQUIREMENTS - USE REAL, VERIFIABLE CITATIONS:
- For prescriptions/medications: "Product Monograph", "CPS (Compendium of Pharmaceuticals and Specialties)", "UpToDate", "Lexicomp", "Micromedex"
- For clinical guidelines: "ACOG Guidelines", "SOGC Guidelines", "CDC Guidelines", "WHO Guidelines", "AHA/ACC Guidelines"
- For obstetrics/gynecology: "Williams Obstetrics", "ACOG Practice Bulletins", "SOGC Clinical Practice Guidelines"
- For general medicine: "Harrison's Principles of Internal Medicine", "UpToDate", "DynaMed"
- For emergency medicine: "Tintinalli's Emergency Medicine", "ACLS Guidelines"
- ONLY cite sources that exist and that a medical professional could verify`

const jsonRules = `Each card object must include:
- title (string)
- content (string, HTML only)
- sources (array of strings)
Optional fields:
- sections (array of section keys chosen from: consultations, prescriptions, investigations, procedures, templates, calculators, urgences)

JSON FORMATTING RULES (CRITICAL):
- ONLY output a valid JSON array, nothing else
- Escape quotes inside strings
- No trailing commas before ] or }
- No markdown code blocks or any text outside the JSON array`

const documentIntro = `You are a medical education assistant. Extract key medical information from the provided document and create multiple study cards.

Your response MUST be valid JSON only, an array of card objects. No other text.

CRITICAL OUTPUT RULES:
1. Each card MUST be self-contained with FULL HTML content, not partial snippets.
2. Divide the document into distinct topics and generate 1 card per topic.
3. Preserve the original content; do NOT summarize away key details.
4. Follow the user's instructions EXACTLY and prioritize their scope above all else.
5. When the user asks for prescriptions, include medication name, dose, route, frequency, duration and indication(s).`

const promptIntro = `You are a medical education assistant. Based on the user request, create multiple study cards.

Your response MUST be valid JSON only, an array of card objects. No other text.

CRITICAL OUTPUT RULES:
1. Each card MUST be self-contained with FULL HTML content, not partial snippets.
2. VOLUME IS MANDATORY: generate exactly the number of cards requested below. Do NOT stop early.
3. ONE ITEM = ONE CARD: each card covers one single medication, item or topic only.
4. If the request includes multiple topics, split them into separate cards.`

// batchPrompt describes one external call of a session.
type batchPrompt struct {
	mode       Mode
	request    string
	section    string
	count      int
	chunk      string
	chunkIndex int
	chunkTotal int
	items      []string
	existing   []string
}

func (b batchPrompt) messages() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: b.system()},
		{Role: llm.RoleUser, Content: b.user()},
	}
}

func (b batchPrompt) system() string {
	var sb strings.Builder
	if b.mode == ModeDocument {
		sb.WriteString(documentIntro)
	} else {
		sb.WriteString(promptIntro)
	}

	sb.WriteString("\n\n")
	sb.WriteString(Constraints(b.request))

	if b.section != "" {
		fmt.Fprintf(&sb, "\n- Set sections to [%q] for ALL cards.", b.section)
	} else {
		sb.WriteString("\n- Choose the most relevant sections for each card.")
	}

	sb.WriteString("\n\n")
	sb.WriteString(jsonRules)
	sb.WriteString("\n\n")
	sb.WriteString(sourceRules)
	sb.WriteString("\n\n")
	sb.WriteString(cardFormat)

	if b.chunkTotal > 0 {
		fmt.Fprintf(&sb, "\n\nThis is chunk %d of %d.", b.chunkIndex+1, b.chunkTotal)
	}
	switch {
	case len(b.items) > 0:
		fmt.Fprintf(&sb, "\nGenerate exactly %d cards, one per listed item.", len(b.items))
	case b.mode == ModeDocument:
		fmt.Fprintf(&sb, "\nAim to produce approximately %d cards from this input.", b.count)
	default:
		fmt.Fprintf(&sb, "\nGenerate exactly %d cards.", b.count)
	}
	return sb.String()
}

func (b batchPrompt) user() string {
	var sb strings.Builder
	if b.chunk != "" {
		sb.WriteString("Based on this document:\n\n")
		sb.WriteString(b.chunk)
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.TrimSpace(b.request))

	if len(b.items) > 0 {
		sb.WriteString("\n\nCreate one card for EACH of these items and nothing else:\n")
		for _, item := range b.items {
			sb.WriteString("- ")
			sb.WriteString(item)
			sb.WriteString("\n")
		}
	}
	if len(b.existing) > 0 {
		sb.WriteString("\n\nThese cards already exist, do NOT repeat them:\n")
		for _, t := range b.existing {
			sb.WriteString("- ")
			sb.WriteString(t)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

const singleCardSystem = `You are a medical education assistant creating quick-reference study cards for medical students during clinical rotations.

Create concise, accurate, clinically useful cards that are visually engaging and easy to scan.

OUTPUT FORMAT - Generate only valid HTML, no markdown:
- Start with title tag: <strong>🎯 Card Title</strong>
- Use <h3> section headers with emojis
- Use <strong> and <u> for key medical terms
- Use <ul><li> and <ol><li> for lists and protocols
- Use <table border='1' style='border-collapse: collapse; width: 100%;'> for differentials, dosing, lab values and algorithms
- Use <span style='color: #dc2626;'> for warnings and contraindications
- End with sources: <p><strong>📚 Sources:</strong> Source1, Source2</p>`

const editCardSystem = `You are a medical education assistant helping EDIT and ENHANCE an existing study card.

EDITING RULES:
1. PRESERVE all existing content unless explicitly asked to remove or change something
2. When asked to "add" or "include" something, ADD it without removing anything
3. When asked to "change" or "fix" something, only modify that specific part
4. ALWAYS return the FULL updated card, not only the new section
5. If the user specifies placement, insert in that exact location

Generate only valid HTML, no markdown. Keep the <strong> title first and the <p><strong>📚 Sources:</strong> ...</p> line last.

CURRENT CONTENT:
%s`

// SingleCardMessages builds the conversation for drafting or editing one
// card. current is the card's existing HTML, empty for a new card.
func SingleCardMessages(request string, history []llm.Message, current string) []llm.Message {
	system := singleCardSystem
	if strings.TrimSpace(current) != "" {
		system = fmt.Sprintf(editCardSystem, current)
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: request})
	return msgs
}
