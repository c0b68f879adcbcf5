package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Wawtawsha/durandal-mcp/internal/errdef"
	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
)

// Aggressive maintenance: importance decay and pruning of low-value rows.
// Run only when the optimize tool is called with aggressive=true.

const (
	// decayPerDay is subtracted from importance per day of age.
	decayPerDay = 0.01
	// pruneAfterDays is the minimum age before a metadata-empty row is
	// eligible for pruning.
	pruneAfterDays = 30
	// pruneImportanceBelow prunes only rows under this importance.
	pruneImportanceBelow = 0.2
)

// SweepReport summarizes an aggressive maintenance pass.
type SweepReport struct {
	Decayed  int `json:"decayed"`
	Pruned   int `json:"pruned"`
	Repaired int `json:"repaired"`
}

// AggressiveSweep applies linear importance decay to every memory, repairs
// corrupt metadata, and prunes metadata-empty rows older than 30 days with
// importance below 0.2. Decay is computed from created_at: the core schema
// carries no last-access column, so age since creation is the decay clock.
func (s *Store) AggressiveSweep(ctx context.Context) (*SweepReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, errdef.FromContext(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, metadata, created_at FROM memories ORDER BY id
	`)
	if err != nil {
		return nil, s.wrapErr(ctx, "sweep scan", err)
	}

	type candidate struct {
		id        int64
		metadata  string
		createdAt time.Time
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		var createdAt string
		if err := rows.Scan(&c.id, &c.metadata, &createdAt); err != nil {
			rows.Close()
			return nil, errdef.Internal(fmt.Errorf("scan sweep row: %w", err))
		}
		c.createdAt = parseTS(createdAt)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errdef.Internal(err)
	}
	rows.Close()

	report := &SweepReport{}
	now := time.Now().UTC()

	// Candidates are ordered by id, so the last one holds the highest id.
	var newestID int64
	if len(candidates) > 0 {
		newestID = candidates[len(candidates)-1].id
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, errdef.FromContext(err)
		}

		ageDays := now.Sub(c.createdAt).Hours() / 24

		repaired := false
		var obj map[string]any
		if err := json.Unmarshal([]byte(c.metadata), &obj); err != nil || obj == nil {
			obj = map[string]any{}
			repaired = true
			report.Repaired++
		}

		importance := DefaultImportance
		if v, ok := obj["importance"].(float64); ok {
			importance = clamp01(v)
		}

		// Prune: metadata-empty, old, low value. Never touches the newest
		// row so id assignment keeps climbing.
		if len(obj) == 0 && ageDays > pruneAfterDays && importance < pruneImportanceBelow && c.id != newestID {
			if err := s.DeleteMemory(ctx, c.id); err != nil {
				L_warn("store: sweep prune failed", "id", c.id, "error", err)
				continue
			}
			report.Pruned++
			continue
		}

		decayed := clamp01(importance - decayPerDay*ageDays)
		if decayed == importance && !repaired {
			continue
		}
		obj["importance"] = decayed

		blob, err := json.Marshal(obj)
		if err != nil {
			L_warn("store: sweep marshal failed", "id", c.id, "error", err)
			continue
		}
		if err := s.UpdateMemoryMetadata(ctx, c.id, blob); err != nil {
			L_warn("store: sweep decay failed", "id", c.id, "error", err)
			continue
		}
		if decayed != importance {
			report.Decayed++
		}
	}

	L_info("store: aggressive sweep complete",
		"decayed", report.Decayed,
		"pruned", report.Pruned,
		"repaired", report.Repaired,
	)
	return report, nil
}
