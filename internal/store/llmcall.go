package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dagrunner/planengine/internal/model"
)

func (s *Store) InsertLlmCall(ctx context.Context, q Querier, c model.LlmCall) error {
	var parsed, normalized any
	if c.ParsedJSON != nil {
		b, err := json.Marshal(c.ParsedJSON)
		if err != nil {
			return fmt.Errorf("marshal parsed json: %w", err)
		}
		parsed = string(b)
	}
	if c.NormalizedJSON != nil {
		b, err := json.Marshal(c.NormalizedJSON)
		if err != nil {
			return fmt.Errorf("marshal normalized json: %w", err)
		}
		normalized = string(b)
	}
	var errCode, errMsg any
	if c.ErrorCode != nil {
		errCode = string(*c.ErrorCode)
	}
	if c.ErrorMessage != nil {
		errMsg = *c.ErrorMessage
	}
	promptTrunc, respTrunc := 0, 0
	if c.PromptTruncated {
		promptTrunc = 1
	}
	if c.ResponseTruncated {
		respTrunc = 1
	}
	_, err := s.q(q).ExecContext(ctx, `
		INSERT INTO llm_calls(llm_call_id, created_at, plan_id, task_id, agent, scope, prompt_text, response_text,
			parsed_json, normalized_json, validator_error, error_code, error_message, attempt, review_attempt,
			retry_reason, prompt_truncated, response_truncated, prompt_tokens, response_tokens)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, c.LlmCallID, formatTime(c.CreatedAt), nullableString(c.PlanID), nullableString(c.TaskID), string(c.Agent),
		string(c.Scope), c.PromptText, c.ResponseText, parsed, normalized, nullableString(c.ValidatorError),
		errCode, errMsg, c.Attempt, c.ReviewAttempt, c.RetryReason, promptTrunc, respTrunc, c.PromptTokens, c.ResponseTokens)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

// UpdateLlmCallPlanID back-fills plan_id on a call made before its plan
// existed (the CreatePlan sub-workflow's PLAN_GEN step runs with no plan_id
// yet, then attaches it once the generated plan is accepted as a stub row).
func (s *Store) UpdateLlmCallPlanID(ctx context.Context, q Querier, llmCallID, planID string) error {
	_, err := s.q(q).ExecContext(ctx, `UPDATE llm_calls SET plan_id = ? WHERE llm_call_id = ?`, planID, llmCallID)
	if err != nil {
		return fmt.Errorf("backfill llm call plan_id: %w", err)
	}
	return nil
}

func scanLlmCall(row interface{ Scan(...any) error }) (*model.LlmCall, error) {
	var c model.LlmCall
	var created string
	var planID, taskID, parsed, normalized, validatorErr, errCode, errMsg sql.NullString
	var promptTrunc, respTrunc int
	if err := row.Scan(&c.LlmCallID, &created, &planID, &taskID, &c.Agent, &c.Scope, &c.PromptText, &c.ResponseText,
		&parsed, &normalized, &validatorErr, &errCode, &errMsg, &c.Attempt, &c.ReviewAttempt, &c.RetryReason,
		&promptTrunc, &respTrunc, &c.PromptTokens, &c.ResponseTokens); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	if planID.Valid {
		c.PlanID = &planID.String
	}
	if taskID.Valid {
		c.TaskID = &taskID.String
	}
	if parsed.Valid {
		c.ParsedJSON = fromJSONMap(parsed.String)
	}
	if normalized.Valid {
		c.NormalizedJSON = fromJSONMap(normalized.String)
	}
	if validatorErr.Valid {
		c.ValidatorError = &validatorErr.String
	}
	if errCode.Valid {
		ec := model.ErrorCode(errCode.String)
		c.ErrorCode = &ec
	}
	if errMsg.Valid {
		c.ErrorMessage = &errMsg.String
	}
	c.PromptTruncated = promptTrunc != 0
	c.ResponseTruncated = respTrunc != 0
	return &c, nil
}

const llmCallColumns = `llm_call_id, created_at, plan_id, task_id, agent, scope, prompt_text, response_text,
	parsed_json, normalized_json, validator_error, error_code, error_message, attempt, review_attempt,
	retry_reason, prompt_truncated, response_truncated, prompt_tokens, response_tokens`

func (s *Store) ListLlmCallsForPlan(ctx context.Context, planID string, limit int) ([]model.LlmCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+llmCallColumns+` FROM llm_calls WHERE plan_id = ? ORDER BY created_at DESC LIMIT ?
	`, planID, limit)
	if err != nil {
		return nil, fmt.Errorf("list llm calls: %w", err)
	}
	defer rows.Close()
	var out []model.LlmCall
	for rows.Next() {
		c, err := scanLlmCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan llm call: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountLlmCallsForPlan backs the engine's MaxLLMCalls fuse (§5): a cheap
// row count rather than loading every call's prompt/response text.
func (s *Store) CountLlmCallsForPlan(ctx context.Context, planID string) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM llm_calls WHERE plan_id = ?`, planID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count llm calls: %w", err)
	}
	return n, nil
}

func (s *Store) ListLlmCallsForTask(ctx context.Context, taskID string) ([]model.LlmCall, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+llmCallColumns+` FROM llm_calls WHERE task_id = ? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list llm calls for task: %w", err)
	}
	defer rows.Close()
	var out []model.LlmCall
	for rows.Next() {
		c, err := scanLlmCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan llm call: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
