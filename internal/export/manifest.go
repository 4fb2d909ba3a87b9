package export

// ManifestFile is one deliverable file copied into a task's bundle
// directory.
type ManifestFile struct {
	DestPath   string `json:"dest_path"`
	SourcePath string `json:"source_path"`
	SHA256     string `json:"sha256"`
}

// ManifestReview summarizes the review that approved (or most recently
// judged) an exported item's artifact.
type ManifestReview struct {
	CheckTaskID string `json:"check_task_id"`
	ReviewID    string `json:"review_id"`
	Verdict     string `json:"verdict"`
	Score       int    `json:"score"`
}

// ManifestItem is one ACTION task's exported deliverable.
type ManifestItem struct {
	TaskID             string          `json:"task_id"`
	TaskTitle          string          `json:"task_title"`
	DeliverableSummary string          `json:"deliverable_summary,omitempty"`
	ApprovedArtifactID string          `json:"approved_artifact_id"`
	Files              []ManifestFile  `json:"files"`
	Review             *ManifestReview `json:"review,omitempty"`
}

// Manifest is the full manifest.json contents for one plan export.
type Manifest struct {
	PlanID       string         `json:"plan_id"`
	ApprovedOnly bool           `json:"approved_only"`
	Items        []ManifestItem `json:"items"`
	Skipped      []string       `json:"skipped,omitempty"`
}

// PlanMeta is the plan_meta.json contents: the plan header plus counts a
// consumer would otherwise have to recompute by re-querying task_nodes.
type PlanMeta struct {
	PlanID      string `json:"plan_id"`
	Title       string `json:"title"`
	RootTaskID  string `json:"root_task_id"`
	TotalTasks  int    `json:"total_tasks"`
	DoneTasks   int    `json:"done_tasks"`
	FailedTasks int    `json:"failed_tasks"`
}

// Final is final.json: the flattened view a consumer reads when it wants
// one file instead of manifest+plan_meta.
type Final struct {
	Plan  PlanMeta       `json:"plan"`
	Items []ManifestItem `json:"items"`
}
