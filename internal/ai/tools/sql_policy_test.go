package tools

import "testing"

func TestClassifyStatementRisk_Readonly(t *testing.T) {
	t.Parallel()

	for _, q := range []string{
		"SELECT Name FROM Artist LIMIT 5",
		"  with t as (select 1) select * from t;",
		"EXPLAIN QUERY PLAN SELECT * FROM Track",
		"SELECT 'drop table x' AS s",
		"PRAGMA table_info(Album)",
		"-- list\nSELECT 1",
	} {
		if risk := ClassifyStatementRisk(q); risk != StatementRiskReadonly {
			t.Fatalf("risk(%q)=%q, want %q", q, risk, StatementRiskReadonly)
		}
	}
}

func TestClassifyStatementRisk_Mutating(t *testing.T) {
	t.Parallel()

	for _, q := range []string{
		"INSERT INTO Artist(Name) VALUES ('x')",
		"UPDATE Artist SET Name = 'y' WHERE ArtistId = 1",
		"SELECT 1; DELETE FROM Artist WHERE ArtistId = 1",
		"PRAGMA journal_mode = delete",
		"WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x",
		"",
	} {
		if risk := ClassifyStatementRisk(q); risk != StatementRiskMutating {
			t.Fatalf("risk(%q)=%q, want %q", q, risk, StatementRiskMutating)
		}
	}
}

func TestClassifyStatementRisk_Dangerous(t *testing.T) {
	t.Parallel()

	for _, q := range []string{
		"DROP TABLE Artist",
		"select 1; drop   table Album",
		"DELETE FROM Artist",
	} {
		if risk := ClassifyStatementRisk(q); risk != StatementRiskDangerous {
			t.Fatalf("risk(%q)=%q, want %q", q, risk, StatementRiskDangerous)
		}
	}
}

func TestSplitStatementsIgnoresQuotedSemicolons(t *testing.T) {
	t.Parallel()

	got := splitStatements(`SELECT 'a;b'; SELECT "c;d" /* ; */`)
	if len(got) != 2 {
		t.Fatalf("segments=%q, want 2", got)
	}
}
