package model

import "time"

// Plan is the top-level unit keyed by PlanID. Created once at import time
// and thereafter structurally immutable: only nodes/edges reachable from it
// gain status changes, never the plan row itself.
type Plan struct {
	PlanID      string
	Title       string
	OwnerAgent  Agent
	RootTaskID  string
	CreatedAt   time.Time
	Deadline    *time.Time
	Priority    int
}

// TaskNode is a vertex in the plan DAG.
type TaskNode struct {
	TaskID             string
	PlanID             string
	NodeType           NodeType
	Title              string
	OwnerAgent         Agent
	Priority           int
	Status             TaskStatus
	BlockedReason      *BlockedReason
	AttemptCount       int
	ActiveArtifactID   *string
	ApprovedArtifactID *string
	ActiveBranch       bool
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// v2 (strong-workflow) fields, see invariant 6.
	EstimatedPersonDays *float64
	DeliverableSpec     *string
	AcceptanceCriteria  *string
	ReviewTargetTaskID  *string
}

// TaskEdge is an edge in the plan DAG.
type TaskEdge struct {
	EdgeID     string
	PlanID     string
	FromTaskID string
	ToTaskID   string
	EdgeType   EdgeType
	AndOr      *AndOr  // DECOMPOSE only
	GroupID    *string // ALTERNATIVE only
}

// InputRequirement is declared on a task and must be satisfied by Evidence
// before the task can become READY.
type InputRequirement struct {
	RequirementID string
	TaskID        string
	Name          string
	Kind          RequirementKind
	Required      bool
	MinCount      int
	AllowedTypes  []string
	Source        RequirementSource
	// FilenameKeywords is the only validation.* field the matcher reads (§4.4).
	FilenameKeywords []string
}

// Evidence is a concrete satisfaction of a requirement, unique per
// (RequirementID, RefID) per invariant 8.
type Evidence struct {
	EvidenceID    string
	RequirementID string
	EvidenceType  RequirementKind
	RefID         string // file content hash, confirmation id, or skill-output id
	RefPath       string // populated for FILE evidence
	AddedAt       time.Time
}

// Artifact is a produced deliverable version.
type Artifact struct {
	ArtifactID string
	TaskID     string
	Name       string
	Path       string
	Format     ArtifactFormat
	Version    int
	SHA256     string
	CreatedAt  time.Time
}

// BreakdownIssue is one flagged problem inside a review dimension.
type BreakdownIssue struct {
	Problem            string
	Evidence           string
	Impact             string
	Suggestion         string
	AcceptanceCriteria string
}

// BreakdownDimension is one scored rubric dimension of a review.
type BreakdownDimension struct {
	Dimension string
	Score     int
	MaxScore  int
	Issues    []BreakdownIssue
}

// Suggestion is one actionable reviewer recommendation.
type Suggestion struct {
	Priority           SuggestionPriority
	Change             string
	Steps              []string
	AcceptanceCriteria string
}

// Review is a reviewer verdict against one artifact version.
type Review struct {
	ReviewID           string
	TargetTaskID       string
	ReviewedArtifactID string
	ReviewerAgent      Agent
	TotalScore         int
	Breakdown          []BreakdownDimension
	Suggestions        []Suggestion
	Summary            string
	ActionRequired     ReviewAction
	CreatedAt          time.Time
}

// SkillRun records an external tool invocation.
type SkillRun struct {
	SkillRunID     string
	SkillName      string
	TaskID         string
	InputHashes    []string
	Params         map[string]any
	Status         string
	Outputs        map[string]any
	IdempotencyKey string
	CreatedAt      time.Time
}

// TaskEvent is an append-only journal entry.
type TaskEvent struct {
	EventID   string
	PlanID    string
	TaskID    *string
	EventType string
	Payload   map[string]any
	CreatedAt time.Time
}

// LlmCall is persisted telemetry for every LM exchange, success or failure.
type LlmCall struct {
	LlmCallID       string
	CreatedAt       time.Time
	PlanID          *string
	TaskID          *string
	Agent           Agent
	Scope           Scope
	PromptText      string
	ResponseText    string
	ParsedJSON      map[string]any
	NormalizedJSON  map[string]any
	ValidatorError  *string
	ErrorCode       *ErrorCode
	ErrorMessage    *string
	Attempt         int
	ReviewAttempt   int
	RetryReason     string
	PromptTruncated bool
	ResponseTruncated bool
	PromptTokens    int
	ResponseTokens  int
}

// InputFile is the observation ledger entry behind FILE_REMOVED detection
// (supplemented from original_source/core/matcher.py).
type InputFile struct {
	InputFileID string
	PlanID      string
	Path        string
	SHA256      string
	SizeBytes   int64
	MtimeUTC    time.Time
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	RemovedAt   *time.Time
}
