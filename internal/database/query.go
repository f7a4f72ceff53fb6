package database

import (
	"fmt"
	"strings"

	"github.com/TemirB/shop/internal/domain"
)

// orderBy renders an ORDER BY clause for a whitelisted ordering, falling
// back to def. tie is always appended so pages stay stable.
func orderBy(o domain.Ordering, allowed map[string]string, def, tie string) string {
	col, ok := allowed[o.Field()]
	if !ok {
		return fmt.Sprintf("ORDER BY %s", def)
	}
	dir := "ASC"
	if o.Desc() {
		dir = "DESC"
	}
	if col == tie {
		return fmt.Sprintf("ORDER BY %s %s", col, dir)
	}
	return fmt.Sprintf("ORDER BY %s %s, %s", col, dir, tie)
}

// limitOffset appends LIMIT/OFFSET placeholders; a zero limit means all rows.
func limitOffset(p domain.Page, args []any) (string, []any) {
	if p.Limit <= 0 {
		return "", args
	}
	args = append(args, p.Limit, p.Offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
