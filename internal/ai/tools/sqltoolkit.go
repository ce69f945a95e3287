package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	ToolSQLQuery        = "sql_db_query"
	ToolSQLSchema       = "sql_db_schema"
	ToolSQLListTables   = "sql_db_list_tables"
	ToolSQLQueryChecker = "sql_db_query_checker"
)

const queryCheckerTemplate = `
%s
Double check the %s query above for common mistakes, including:
- Using NOT IN with NULL values
- Using UNION when UNION ALL should have been used
- Using BETWEEN for exclusive ranges
- Data type mismatch in predicates
- Properly quoting identifiers
- Using the correct number of arguments for functions
- Casting to the correct data type
- Using the proper columns for joins

If there are any of the above mistakes, rewrite the query. If there are no mistakes, just reproduce the original query.

Output the final SQL query only.

SQL Query: `

// Oracle is a text-in/text-out model call.
type Oracle func(ctx context.Context, prompt string) (string, error)

// SQLToolkit returns the four SQL tools bound to db. checker may be nil, in which case
// the query checker tool is omitted.
func SQLToolkit(db *Database, checker Oracle) []Tool {
	out := []Tool{
		&sqlQueryTool{db: db},
		&sqlSchemaTool{db: db},
		&sqlListTablesTool{db: db},
	}
	if checker != nil {
		out = append(out, &sqlQueryCheckerTool{db: db, oracle: checker})
	}
	return out
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

type sqlQueryTool struct{ db *Database }

func (t *sqlQueryTool) Definition() Definition {
	return Definition{
		Name: ToolSQLQuery,
		Description: "Input to this tool is a detailed and correct SQL query, output is a result from the database. " +
			"If the query is not correct, an error message will be returned. If an error is returned, rewrite the query, " +
			"check the query, and try again. If you encounter an issue with Unknown column 'xxxx' in 'field list', " +
			"use " + ToolSQLSchema + " to query the correct table fields.",
		Parameters: objectSchema(map[string]any{"query": stringProp("A detailed and correct SQL query.")}, "query"),
		Kind:       KindSQLQuery,
	}
}

func (t *sqlQueryTool) Call(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "", errors.New("missing argument: query")
	}
	return t.db.Run(ctx, query)
}

type sqlSchemaTool struct{ db *Database }

func (t *sqlSchemaTool) Definition() Definition {
	return Definition{
		Name: ToolSQLSchema,
		Description: "Input to this tool is a comma-separated list of tables, output is the schema and sample rows for those tables. " +
			"Be sure that the tables actually exist by calling " + ToolSQLListTables + " first! Example Input: table1, table2, table3",
		Parameters: objectSchema(map[string]any{"table_names": stringProp("A comma-separated list of the table names for which to return the schema. Example input: 'table1, table2, table3'")}, "table_names"),
		Kind:       KindSQLSchema,
	}
}

func (t *sqlSchemaTool) Call(ctx context.Context, args map[string]any) (string, error) {
	raw := stringArg(args, "table_names", "tool_input")
	var names []string
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "", errors.New("missing argument: table_names")
	}
	return t.db.TableInfo(ctx, names)
}

type sqlListTablesTool struct{ db *Database }

func (t *sqlListTablesTool) Definition() Definition {
	return Definition{
		Name:        ToolSQLListTables,
		Description: "Input is an empty string, output is a comma-separated list of tables in the database.",
		Parameters:  objectSchema(map[string]any{"tool_input": stringProp("An empty string")}),
		Kind:        KindSQLListTables,
	}
}

func (t *sqlListTablesTool) Call(ctx context.Context, _ map[string]any) (string, error) {
	names, err := t.db.UsableTableNames(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(names, ", "), nil
}

type sqlQueryCheckerTool struct {
	db     *Database
	oracle Oracle
}

func (t *sqlQueryCheckerTool) Definition() Definition {
	return Definition{
		Name: ToolSQLQueryChecker,
		Description: "Use this tool to double check if your query is correct before executing it. " +
			"Always use this tool before executing a query with " + ToolSQLQuery + "!",
		Parameters: objectSchema(map[string]any{"query": stringProp("A detailed and SQL query to be checked.")}, "query"),
		Kind:       KindSQLChecker,
	}
}

func (t *sqlQueryCheckerTool) Call(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "", errors.New("missing argument: query")
	}
	out, err := t.oracle(ctx, fmt.Sprintf(queryCheckerTemplate, query, t.db.Dialect()))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
