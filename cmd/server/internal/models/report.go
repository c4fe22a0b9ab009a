package models

import (
	"sort"
	"time"
)

// OverallVerdict 报告整体结论
type OverallVerdict string

const (
	VerdictAccurate       OverallVerdict = "accurate"
	VerdictMostlyAccurate OverallVerdict = "mostly_accurate"
	VerdictMixed          OverallVerdict = "mixed"
	VerdictMisleading     OverallVerdict = "misleading"
	VerdictFalse          OverallVerdict = "false"
	VerdictUnverifiable   OverallVerdict = "unverifiable"
)

// OverallVerdicts 全部合法的整体结论
var OverallVerdicts = []OverallVerdict{
	VerdictAccurate, VerdictMostlyAccurate, VerdictMixed, VerdictMisleading, VerdictFalse, VerdictUnverifiable,
}

// ClaimVerdict 单条声明的结论
type ClaimVerdict string

const (
	ClaimSupported       ClaimVerdict = "supported"
	ClaimContradicted    ClaimVerdict = "contradicted"
	ClaimMixed           ClaimVerdict = "mixed"
	ClaimUnverifiable    ClaimVerdict = "unverifiable"
	ClaimNotFactualClaim ClaimVerdict = "not_a_factual_claim"
)

// ClaimVerdicts 全部合法的声明结论
var ClaimVerdicts = []ClaimVerdict{
	ClaimSupported, ClaimContradicted, ClaimMixed, ClaimUnverifiable, ClaimNotFactualClaim,
}

// DangerCategory 危害类别
type DangerCategory string

const (
	DangerMedicalMisinformation DangerCategory = "medical_misinformation"
	DangerFinancialScam         DangerCategory = "financial_scam"
	DangerIllegalInstructions   DangerCategory = "illegal_instructions"
	DangerSelfHarm              DangerCategory = "self_harm"
	DangerDangerousChallenge    DangerCategory = "dangerous_challenge"
	DangerHateOrHarassment      DangerCategory = "hate_or_harassment"
	DangerPrivacyOrDoxxing      DangerCategory = "privacy_or_doxxing"
	DangerOther                 DangerCategory = "other"
)

// DangerCategories 全部合法的危害类别
var DangerCategories = []DangerCategory{
	DangerMedicalMisinformation, DangerFinancialScam, DangerIllegalInstructions, DangerSelfHarm,
	DangerDangerousChallenge, DangerHateOrHarassment, DangerPrivacyOrDoxxing, DangerOther,
}

// Source 引用来源
type Source struct {
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	Publisher  string     `json:"publisher,omitempty"`
	AccessedAt *time.Time `json:"accessed_at,omitempty"`
}

// Claim 单条可核查声明
type Claim struct {
	Claim       string       `json:"claim"`
	Verdict     ClaimVerdict `json:"verdict"`
	Weight      int          `json:"weight"`     // 0-100，对核心观点的重要程度
	Confidence  int          `json:"confidence"` // 0-100，证据强度
	Explanation string       `json:"explanation"`
	Correction  string       `json:"correction,omitempty"`
	Sources     []Source     `json:"sources"`
}

// DangerItem 危害评估条目
type DangerItem struct {
	Category    DangerCategory `json:"category"`
	Severity    int            `json:"severity"` // 1-5
	Description string         `json:"description"`
	Mitigation  string         `json:"mitigation,omitempty"`
}

// Report 规范化后的事实核查报告（单一语言）
type Report struct {
	OverallScore   int            `json:"overall_score"`
	OverallVerdict OverallVerdict `json:"overall_verdict"`
	Summary        string         `json:"summary"`
	WhatsRight     []string       `json:"whats_right"`
	WhatsWrong     []string       `json:"whats_wrong"`
	MissingContext []string       `json:"missing_context"`
	Limitations    string         `json:"limitations"`
	Danger         []DangerItem   `json:"danger"`
	SourcesUsed    []Source       `json:"sources_used"`
	Claims         []Claim        `json:"claims"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// Clone 深拷贝报告
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	out := *r
	out.WhatsRight = append([]string{}, r.WhatsRight...)
	out.WhatsWrong = append([]string{}, r.WhatsWrong...)
	out.MissingContext = append([]string{}, r.MissingContext...)
	out.Danger = append([]DangerItem{}, r.Danger...)
	out.SourcesUsed = append([]Source{}, r.SourcesUsed...)
	out.Claims = make([]Claim, len(r.Claims))
	for i, c := range r.Claims {
		c.Sources = append([]Source{}, c.Sources...)
		out.Claims[i] = c
	}
	return &out
}

// SortedClaims 返回按 weight 降序排列的声明副本（稳定排序，存储顺序不受影响）
func (r *Report) SortedClaims() []Claim {
	claims := append([]Claim{}, r.Claims...)
	sort.SliceStable(claims, func(i, j int) bool {
		return claims[i].Weight > claims[j].Weight
	})
	return claims
}
