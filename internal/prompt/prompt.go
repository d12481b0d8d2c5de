package prompt

import (
	"fmt"
	"strings"

	"github.com/floegence/llm-loop-lab/internal/notes"
)

// Request is one rendered request payload: a system instruction plus one user message.
type Request struct {
	System string
	User   string
}

// SystemPrompt is shared by all three modes. It front-loads the output
// contract because small local models drift quickly without it.
const SystemPrompt = "ROLE: Structured JSON generator.\n" +
	"OUTPUT CONTRACT:\n" +
	"- Return ONE (1) JSON object and NOTHING ELSE. No prose, no backticks, no prefix/suffix.\n" +
	"- Use only double-quoted keys/strings. No trailing commas. UTF-8 safe.\n" +
	"- If a field has no content, output an empty list [], not null.\n" +
	"- Never include explanations, markdown, or comments.\n" +
	"QUALITY GATE (perform silently before responding):\n" +
	"1) Does the output parse as strict JSON? 2) Keys exactly match the schema? 3) No extra keys?\n" +
	"If any check fails, fix it BEFORE responding.\n"

const notesFormat = `
You MUST output JSON that matches this schema EXACTLY:

{
  "notes": {
    "premises": ["<≤15 words>", "<≤15 words>", "<≤15 words>"],
    "hypotheses": ["<≤15 words>", "<≤15 words>"],
    "uncertainties": ["<≤15 words>", "<≤15 words>"],
    "plan_next": ["<≤15 words>", "<≤15 words>"]
  },
  "answer": "<2-3 sentences (≤45 words total)>"
}

CONSTRAINTS:
- Single JSON object only; no prose or markdown outside the JSON.
- Use empty lists [] when a section has no items. No nulls. No extra keys.
- Total words in notes ≤ 120.
`

const batchInstructions = "INSTRUCTIONS:\n" +
	"1) From the SCENARIO, infer key premises, uncertainties, and 1-2 next actions (plan_next).\n" +
	"2) Keep items concise (≤15 words each). Keep notes ≤120 words total.\n" +
	"3) Output MUST conform to the schema and be valid JSON.\n"

const refinementInstructions = "INSTRUCTIONS:\n" +
	"- Reconcile PRIOR NOTES with the SCENARIO. Identify conflicts silently and update only if justified.\n" +
	"- Adjust premises/hypotheses when evidence requires; otherwise keep them stable.\n" +
	"- Keep items concise. Notes ≤120 words total. JSON only, per schema.\n"

const stepwiseFormat = `
You MUST output JSON that matches this schema EXACTLY:

{
  "next_thought": "<one sentence (5-18 words) that advances the reasoning>",
  "notes": {
    "premises": ["<≤15 words>", "<≤15 words>", "<≤15 words>"],
    "hypotheses": ["<≤15 words>", "<≤15 words>"],
    "uncertainties": ["<≤15 words>", "<≤15 words>"],
    "plan_next": ["<≤15 words>", "<≤15 words>"]
  }
}

RULES:
- Emit EXACTLY ONE sentence in next_thought; no lists or multiple sentences.
- Each list in notes may contain 0-3 items (premises up to 3; others up to 2).
- Keep total words in all notes ≤ 80. Prefer concrete, operational phrases.
- If you would repeat a prior thought, rephrase it to be more specific or produce the next incremental action instead.
`

const stepwiseInstructions = "TASK:\n" +
	"- Read SCENARIO and the recent THOUGHT HISTORY.\n" +
	"- Produce exactly one new thought that pushes the plan forward.\n" +
	"- Update notes ONLY if justified by either the SCENARIO or a prior thought.\n" +
	"\n" +
	"CONSTRAINTS:\n" +
	"- Output MUST be a single JSON object that matches the schema.\n" +
	"- No extra keys. No commentary. No markdown. No code fences.\n" +
	"- Use empty lists [] if you have no update for a notes field.\n"

const stepwiseExample = "EXAMPLE (illustrative only—replace with your own content):\n" +
	`{"next_thought":"Measure current habitat load and isolate non-critical circuits.",` +
	`"notes":{"premises":["Partial power","Crew: 4","Supplies: 30 days"],` +
	`"hypotheses":["Life support must be prioritized"],` +
	`"uncertainties":["Storm duration"],` +
	`"plan_next":["Read power telemetry","Switch to low-power mode"]}}` + "\n"

// Batch renders the stateless single-shot request.
func Batch(scenario string) Request {
	user := fmt.Sprintf("SCENARIO:\n%s\n\n%s\n%s", scenario, batchInstructions, notesFormat)
	return Request{System: SystemPrompt, User: user}
}

// Refinement renders the request for one refinement iteration, embedding the
// carried notes as a PRIOR NOTES block.
func Refinement(scenario string, prior notes.Notes) Request {
	user := fmt.Sprintf(
		"SCENARIO:\n%s\n\n%s\n%s\n%s",
		scenario, renderPriorNotes(prior), refinementInstructions, notesFormat,
	)
	return Request{System: SystemPrompt, User: user}
}

// Stepwise renders the request for one stepwise-thought step. The history
// block shows the most recent window thoughts, most recent first.
func Stepwise(scenario string, thoughts []string, window int) Request {
	user := fmt.Sprintf(
		"SCENARIO:\n%s\n\n%s\n\n"+
			"RESPONSE REQUIREMENTS:\n"+
			"- Return ONE JSON object ONLY; no markdown, no text outside the JSON.\n"+
			"- Follow the schema exactly; use empty lists [] when unknown.\n\n"+
			"%s\n%s\n%s",
		scenario, renderThoughtHistory(thoughts, window), stepwiseInstructions, stepwiseFormat, stepwiseExample,
	)
	return Request{System: SystemPrompt, User: user}
}

func renderPriorNotes(n notes.Notes) string {
	join := func(items []string) string {
		return strings.Join(items, ", ")
	}
	return "PRIOR NOTES (compressed):\n" +
		fmt.Sprintf("Premises*: [%s]\n", join(n.Premises)) +
		fmt.Sprintf("Hypotheses*: [%s]\n", join(n.Hypotheses)) +
		fmt.Sprintf("Uncertainties*: [%s]\n", join(n.Uncertainties)) +
		fmt.Sprintf("Plan_next*: [%s]\n", join(n.PlanNext))
}

func renderThoughtHistory(thoughts []string, window int) string {
	recent := []string{}
	if window > 0 && len(thoughts) > 0 {
		start := len(thoughts) - window
		if start < 0 {
			start = 0
		}
		recent = thoughts[start:]
	}
	lines := make([]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		lines = append(lines, "- "+recent[i])
	}
	body := strings.Join(lines, "\n")
	if body == "" {
		body = "- (none)"
	}
	return "THOUGHT HISTORY (most recent first):\n" + body
}
