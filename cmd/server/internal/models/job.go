package models

import "time"

// JobStatus 任务状态
type JobStatus string

const (
	StatusQueued             JobStatus = "queued"
	StatusFetchingTranscript JobStatus = "fetching_transcript"
	StatusDownloading        JobStatus = "downloading"
	StatusTranscribing       JobStatus = "transcribing"
	StatusFactChecking       JobStatus = "fact_checking"
	StatusTranslating        JobStatus = "translating"
	StatusCompleted          JobStatus = "completed"
	StatusFailed             JobStatus = "failed"
)

// IsTerminal 判断状态是否为终态（completed/failed）
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid 判断状态值是否合法
func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusFetchingTranscript, StatusDownloading, StatusTranscribing,
		StatusFactChecking, StatusTranslating, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Job 一次事实核查任务
type Job struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	NormalizedURL    string    `json:"normalized_url"`
	OutputLanguage   string    `json:"output_language"`
	Status           JobStatus `json:"status"`
	Progress         int       `json:"progress"` // 0-100，运行期间单调不减
	ThoughtSummaries []string  `json:"thought_summaries"`
	Transcript       string    `json:"transcript,omitempty"`
	Report           *Report   `json:"report,omitempty"` // 仅 completed 时存在
	Error            string    `json:"error,omitempty"`  // 仅 failed 时存在

	Title          string `json:"title,omitempty"`
	ThumbnailURL   string `json:"thumbnail_url,omitempty"`
	TranslatedFrom string `json:"translated_from,omitempty"` // 翻译任务的来源任务 ID

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone 返回深拷贝，避免调用方修改存储中的记录
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.ThoughtSummaries = append([]string{}, j.ThoughtSummaries...)
	if j.Report != nil {
		out.Report = j.Report.Clone()
	}
	return &out
}

// HistoryItem 历史列表条目
type HistoryItem struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	OutputLanguage string    `json:"output_language"`
	Status         JobStatus `json:"status"`
	OverallScore   *int      `json:"overall_score,omitempty"`
	OverallVerdict string    `json:"overall_verdict,omitempty"`
	Title          string    `json:"title,omitempty"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ToHistoryItem 生成历史列表摘要
func (j *Job) ToHistoryItem() HistoryItem {
	item := HistoryItem{
		ID:             j.ID,
		URL:            j.URL,
		OutputLanguage: j.OutputLanguage,
		Status:         j.Status,
		Title:          j.Title,
		ThumbnailURL:   j.ThumbnailURL,
		UpdatedAt:      j.UpdatedAt,
	}
	if j.Report != nil {
		score := j.Report.OverallScore
		item.OverallScore = &score
		item.OverallVerdict = string(j.Report.OverallVerdict)
	}
	return item
}

// Presentation 返回用于展示的副本：claims 按 weight 降序排列，存储顺序不变
func (j *Job) Presentation() *Job {
	out := j.Clone()
	if out != nil && out.Report != nil {
		out.Report.Claims = out.Report.SortedClaims()
	}
	return out
}
