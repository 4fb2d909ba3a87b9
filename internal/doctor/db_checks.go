package doctor

import (
	"context"
	"fmt"
)

// requiredTables is the full table set migration 000001_init_schema.up.sql
// creates. Notably absent: approvals, task_error_counters, prompts — this
// engine subsumes those concepts into reviews+approved_artifact_id,
// attempt_count, and the prompt builders in internal/executor/prompt.go and
// internal/reviewer/prompt.go respectively, so their absence is not a
// doctor failure (see DESIGN.md).
var requiredTables = []string{
	"plans", "task_nodes", "task_edges", "input_requirements", "evidences",
	"artifacts", "reviews", "skill_runs", "task_events", "llm_calls", "input_files",
}

// requiredTaskNodeColumns covers both the v1 base columns and the v2
// strong-workflow extension columns (invariant 6), since the same table
// carries both regardless of workflow_mode.
var requiredTaskNodeColumns = []string{
	"task_id", "plan_id", "node_type", "title", "owner_agent", "priority", "status",
	"blocked_reason", "attempt_count", "active_artifact_id", "approved_artifact_id",
	"active_branch", "created_at", "updated_at",
	"estimated_person_days", "deliverable_spec", "acceptance_criteria", "review_target_task_id",
}

// expectedMigrationVersion tracks internal/store/migrations/sqlite's single
// 000001_init_schema migration. Bump this alongside adding a new migration
// file.
const expectedMigrationVersion = uint(1)

func (d *Doctor) checkDatabase(ctx context.Context, r *Report) {
	d.checkTablesExist(ctx, r)
	d.checkTaskNodeColumns(ctx, r)
	d.checkMigrationVersion(r)
	d.checkForeignKeysPragma(ctx, r)
}

func (d *Doctor) checkTablesExist(ctx context.Context, r *Report) {
	existing := map[string]bool{}
	rows, err := d.store.DB().QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		r.fail("DB_TABLES", fmt.Sprintf("could not list tables: %v", err))
		return
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			r.fail("DB_TABLES", fmt.Sprintf("scan table name: %v", err))
			return
		}
		existing[name] = true
	}
	var missing []string
	for _, t := range requiredTables {
		if !existing[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		r.fail("DB_TABLES", fmt.Sprintf("missing tables: %v", missing))
		return
	}
	r.ok("DB_TABLES", "all required tables present")
}

func (d *Doctor) checkTaskNodeColumns(ctx context.Context, r *Report) {
	existing := map[string]bool{}
	rows, err := d.store.DB().QueryContext(ctx, `PRAGMA table_info(task_nodes)`)
	if err != nil {
		r.fail("DB_COLUMNS_TASK_NODES", fmt.Sprintf("could not inspect task_nodes: %v", err))
		return
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			r.fail("DB_COLUMNS_TASK_NODES", fmt.Sprintf("scan column info: %v", err))
			return
		}
		existing[name] = true
	}
	var missing []string
	for _, c := range requiredTaskNodeColumns {
		if !existing[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		r.fail("DB_COLUMNS_TASK_NODES", fmt.Sprintf("task_nodes missing columns: %v", missing))
		return
	}
	r.ok("DB_COLUMNS_TASK_NODES", "task_nodes has every required column")
}

func (d *Doctor) checkMigrationVersion(r *Report) {
	version, dirty, err := d.versionFn(d.dbPath)
	if err != nil {
		r.fail("DB_MIGRATION_VERSION", fmt.Sprintf("could not read migration version: %v", err))
		return
	}
	if dirty {
		r.fail("DB_MIGRATION_VERSION", fmt.Sprintf("migration %d is marked dirty; repair-db must run before the engine starts", version))
		return
	}
	if version != expectedMigrationVersion {
		r.fail("DB_MIGRATION_VERSION", fmt.Sprintf("database is at migration %d, engine expects %d", version, expectedMigrationVersion))
		return
	}
	r.ok("DB_MIGRATION_VERSION", fmt.Sprintf("database is at the expected migration %d", version))
}

func (d *Doctor) checkForeignKeysPragma(ctx context.Context, r *Report) {
	var enabled int
	row := d.store.DB().QueryRowContext(ctx, `PRAGMA foreign_keys`)
	if err := row.Scan(&enabled); err != nil {
		r.fail("DB_FOREIGN_KEYS", fmt.Sprintf("could not read foreign_keys pragma: %v", err))
		return
	}
	if enabled == 0 {
		r.fail("DB_FOREIGN_KEYS", "foreign_keys pragma is off for this connection")
		return
	}
	r.ok("DB_FOREIGN_KEYS", "foreign_keys pragma is on")
}
