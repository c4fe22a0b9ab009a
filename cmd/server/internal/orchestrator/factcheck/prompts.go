package factcheck

import (
	"fmt"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
)

// SystemPrompt instructs the model how to extract, verify and score claims.
const SystemPrompt = `You fact-check transcripts of short social media videos (YouTube, Instagram, TikTok, X).

Your job is to judge the factual accuracy of what is said and to assess whether the content could cause harm.

Procedure:
1) List the distinct checkable factual claims, including implied numbers and statistics.
2) Verify every claim with the web search tool available to you.
3) Give each claim a verdict and a confidence, then an overall verdict and score.
4) Assess danger, with particular attention to medical, financial, illegal, self-harm and dangerous-challenge content.

The following are NOT factual claims. Give them verdict not_a_factual_claim and weight 0:
- sponsor mentions, discount codes and product promotion
- calls to action such as subscribe, like, share or click the link
- opinions, preferences and value judgments
- sarcasm, irony, jokes, skits and parody
- rhetorical questions and hypotheticals
- personal anecdotes that assert nothing verifiable about the outside world
- predictions about the future and statements of intent
- greetings, filler and commentary about the video itself

Only assertions about external reality that evidence can confirm or refute are claims. When unsure, use not_a_factual_claim.

Rules:
- Prefer primary and authoritative sources: government, peer-reviewed research, major institutions, established news outlets.
- Cite only sources you actually retrieved. Never invent a source.
- When evidence is weak or conflicting, say so and lower the confidence.
- When the transcript looks garbled or mistranscribed, mention it in limitations.
- Do not identify private individuals or add personal details.
- Every key of the JSON schema is required. Use null for unknown strings, 0 for unknown numbers and [] for empty lists.

Weights and score:
- Each factual claim gets a weight from 0 to 100 for how central it is to the video's main message. Central claims carry most of the weight, side remarks little.
- Weights of scorable claims should sum to roughly 100.
- A wrong central claim must pull the score down sharply. A wrong minor claim barely moves it.

Score bands (0-100):
- 90-100 accurate: strong evidence, at most small quibbles.
- 70-89 mostly_accurate: correct overall with some missing context or small errors.
- 40-69 mixed: several important problems or cherry-picking.
- 10-39 misleading: largely incorrect.
- 0-9 false: entirely false or dangerous misinformation.

overall_verdict is one of: accurate, mostly_accurate, mixed, misleading, false, unverifiable.
Claim verdict is one of: supported, contradicted, mixed, unverifiable, not_a_factual_claim.

Danger items:
- category is one of: medical_misinformation, financial_scam, illegal_instructions, self_harm, dangerous_challenge, hate_or_harassment, privacy_or_doxxing, other.
- severity is 1 (minor) to 5 (severe or imminent). Leave danger empty when there is none.
- Add a short mitigation when one applies.

Reply with a single JSON object that follows the schema exactly.`

// BuildUserPrompt renders the per-video instruction.
func BuildUserPrompt(req Request) string {
	lang := strings.ToLower(strings.TrimSpace(req.OutputLanguage))
	if lang == "" {
		lang = models.DefaultLanguage
	}
	name := models.LanguageName(lang)

	var b strings.Builder
	if req.URL != "" {
		fmt.Fprintf(&b, "Video URL: %s\n", req.URL)
	}
	if req.Title != "" {
		fmt.Fprintf(&b, "Video title: %s\n", req.Title)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Output language: %s (code: %s).\n", name, lang)
	b.WriteString("Write every human-readable field (summary, whats_right, whats_wrong, missing_context, claim text, explanations, corrections, danger descriptions and mitigations, limitations) in that language.\n")
	b.WriteString("Keep JSON keys and enum values in English. Keep source titles and publishers as published.\n\n")
	b.WriteString("Transcript (verbatim, may contain recognition errors):\n")
	b.WriteString(req.Transcript)
	b.WriteString("\n\n")
	b.WriteString("Steps:\n")
	b.WriteString("1) Extract only real factual claims. Skip ads, promotion, calls to action, opinions, jokes, predictions, anecdotes and hypotheticals.\n")
	b.WriteString("   Weight each claim 0-100 by centrality; scorable weights should sum to about 100; not_a_factual_claim has weight 0.\n")
	b.WriteString("2) Verify each factual claim with web search.\n")
	b.WriteString("3) Give an overall score (0-100) and a plain-language summary of what is right and what is wrong.\n")
	b.WriteString("   If the video is mostly promotional or entertainment, say so and score only the verifiable claims.\n")
	b.WriteString("4) Assess danger and recommend a warning when needed.\n")
	b.WriteString("5) Fill sources_used with the unique sources you relied on.\n")
	return b.String()
}

// FixJSONPrompt asks the model to repair output that did not parse.
func FixJSONPrompt(previous string) string {
	return "Return ONLY a valid JSON object: no markdown, no code fences, no commentary.\n" +
		"Repair the JSON below and return the corrected object only:\n\n" + previous
}
