package fixsource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/planfix/planfix/internal/issue"
)

var pgjson = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts the pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres resolves fixes from a `fixes` table. Rows are declared per
// (mnemonic, section) with an action type, an optional node pattern, and a
// jsonb parameter map; precedence orders rows the same way fixconf levels
// order specs.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

const lookupFixesSQL = `
        SELECT COALESCE(node_pattern, ''), action_type, action_name, COALESCE(params, '{}'::jsonb)
        FROM fixes
        WHERE mnemonic = $1 AND section = $2
        ORDER BY precedence ASC;
    `

// NewPostgres creates a Postgres fix source and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, log: logger.Named("fixsource.postgres")}, nil
}

// FindFixes implements Provider.
func (p *Postgres) FindFixes(ctx context.Context, iss issue.Issue, nodes []string, _ map[string]any) ([]Resolution, error) {
	rows, err := p.pool.Query(ctx, lookupFixesSQL, iss.Mnemonic(), iss.Section())
	if err != nil {
		return nil, fmt.Errorf("failed to query fixes for %s: %w", iss.Ref(), err)
	}
	defer rows.Close()

	var specs []Spec
	for rows.Next() {
		var (
			pattern    string
			actionType string
			actionName string
			rawParams  []byte
		)
		if err := rows.Scan(&pattern, &actionType, &actionName, &rawParams); err != nil {
			return nil, fmt.Errorf("failed to scan fix row: %w", err)
		}

		var params map[string]any
		if len(rawParams) > 0 {
			if err := pgjson.Unmarshal(rawParams, &params); err != nil {
				return nil, fmt.Errorf("failed to decode fix params for %s: %w", iss.Ref(), err)
			}
		}

		spec := Spec{Params: params, Nodes: pattern}
		switch actionType {
		case "task":
			spec.Task = actionName
		case "plan":
			spec.Plan = actionName
		case "command":
			spec.Command = actionName
		case "skip":
			spec.Skip = true
		default:
			return nil, fmt.Errorf("unknown fix action type %q for %s", actionType, iss.Ref())
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during fix row iteration: %w", err)
	}

	if len(specs) == 0 {
		p.log.Debug("No fixes declared", zap.String("issue", iss.Ref()))
		return Null{}.FindFixes(ctx, iss, nodes, nil)
	}
	return partition(nodes, specs)
}
