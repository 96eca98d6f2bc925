package builtin

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"ppexec/internal/command"
	"ppexec/internal/ddl"
	"ppexec/internal/domain"
	"ppexec/internal/frame"
	"ppexec/internal/storage"
	"ppexec/internal/table"
)

var sqlSyntax = command.Syntax{Rules: []command.Rule{
	{Name: "query", Type: command.RuleKwarg, Required: true, InputTypes: []string{"string"}},
}}

// dfView is the view name the current table is exposed under.
const dfView = "df"

func newSQLFactory(opts Options) command.Factory {
	return func(args command.Args) (command.Unit, error) {
		query, err := command.RequireString("sql", args, "query")
		if err != nil {
			return nil, err
		}
		return command.UnitFunc(func(ctx context.Context, in *table.Table) (*table.Table, error) {
			return runSQL(ctx, opts, query, in)
		}), nil
	}
}

// runSQL evaluates query in a fresh in-memory DuckDB database. The input
// table, when present, is written to a scratch Parquet file and exposed as
// the view df.
func runSQL(ctx context.Context, opts Options, query string, in *table.Table) (*table.Table, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if opts.Threads > 0 {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET threads = %d", opts.Threads)); err != nil {
			return nil, fmt.Errorf("set duckdb threads: %w", err)
		}
	}

	if in != nil {
		scratch, err := os.MkdirTemp(opts.TempDir, "ppexec-sql-*")
		if err != nil {
			return nil, fmt.Errorf("create scratch directory: %w", err)
		}
		defer func() { _ = os.RemoveAll(scratch) }()

		path := filepath.Join(scratch, "df.parquet")
		if err := storage.WriteColumnarFile(path, in); err != nil {
			return nil, err
		}
		view := fmt.Sprintf("CREATE TEMP VIEW %s AS SELECT * FROM read_parquet(%s)", dfView, ddl.QuoteLiteral(path))
		if _, err := conn.ExecContext(ctx, view); err != nil {
			return nil, fmt.Errorf("expose input table: %w", err)
		}
	}

	opts.Logger.DebugContext(ctx, "running sql unit", "query", query)
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.ErrInvalidArgument("sql", "query failed: %v", err)
	}
	defer func() { _ = rows.Close() }()

	f, err := scanFrame(rows)
	if err != nil {
		return nil, fmt.Errorf("scan query result: %w", err)
	}
	if in == nil {
		return table.New(f), nil
	}
	return in.Derive(f), nil
}

func scanFrame(rows *sql.Rows) (*frame.Frame, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	values := make([][]any, len(types))
	for rows.Next() {
		vals := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			switch x := v.(type) {
			case []byte:
				v = string(x)
			case interface{ Float64() float64 }:
				v = x.Float64()
			}
			values[i] = append(values[i], frame.Normalize(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cols := make([]*frame.Column, len(types))
	for i, ct := range types {
		if values[i] == nil {
			values[i] = []any{}
		}
		kind, ok := duckKind(ct.DatabaseTypeName())
		if !ok {
			cols[i] = frame.InferColumn(ct.Name(), values[i])
			continue
		}
		c, err := frame.NewColumn(ct.Name(), frame.Of(kind), values[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", ct.Name(), err)
		}
		cols[i] = c
	}
	return frame.New(cols...)
}

// duckKind maps DuckDB result type names onto frame kinds.
func duckKind(typeName string) (frame.Kind, bool) {
	switch {
	case typeName == "BIGINT":
		return frame.Int64, true
	case typeName == "INTEGER", typeName == "SMALLINT", typeName == "TINYINT":
		return frame.Int32, true
	case typeName == "DOUBLE", strings.HasPrefix(typeName, "DECIMAL"):
		return frame.Float64, true
	case typeName == "FLOAT":
		return frame.Float32, true
	case typeName == "VARCHAR":
		return frame.Utf8, true
	case typeName == "BOOLEAN":
		return frame.Bool, true
	case typeName == "DATE", strings.HasPrefix(typeName, "TIMESTAMP"):
		return frame.Timestamp, true
	}
	return frame.Dynamic, false
}
