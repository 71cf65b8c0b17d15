package nodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/jackc/pgx/v5"
	_ "modernc.org/sqlite"
)

// SQLiteQueryConfig names the database file.
type SQLiteQueryConfig struct {
	DBPath string `mapstructure:"dbpath"`
}

// SQLiteQueryNode runs the result as a query and returns one line per row,
// columns separated by ", ".
type SQLiteQueryNode struct {
	*Configurable[SQLiteQueryConfig]
}

func NewSQLiteQueryNode() *SQLiteQueryNode {
	return &SQLiteQueryNode{NewConfigurable(SQLiteQueryConfig{})}
}

func (*SQLiteQueryNode) Type() string { return TypeSQLiteQuery }

func (s *SQLiteQueryNode) Run(ctx context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	path := s.Config().DBPath
	if path == "" {
		return nil, errors.New("dbpath is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, st.Result)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var lines []string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		fields := make([]string, len(vals))
		for i, v := range vals {
			fields[i] = sqlText(v)
		}
		lines = append(lines, strings.Join(fields, ", "))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return textOut(strings.Join(lines, "\n")), nil
}

// PGQueryConfig is a Postgres connection string.
type PGQueryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PGQueryNode runs the result as a query and returns the first column of
// the first row, or "" when there are no rows.
type PGQueryNode struct {
	*Configurable[PGQueryConfig]
}

func NewPGQueryNode() *PGQueryNode {
	return &PGQueryNode{NewConfigurable(PGQueryConfig{})}
}

func (*PGQueryNode) Type() string { return TypePGQuery }

func (p *PGQueryNode) Run(ctx context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	conn, err := pgx.Connect(ctx, p.Config().DSN)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	var v any
	if err := conn.QueryRow(ctx, st.Result).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return textOut(""), nil
		}
		return nil, err
	}
	return textOut(sqlText(v)), nil
}

func sqlText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	}
	return fmt.Sprint(v)
}
