package tools

import (
	"regexp"
	"strings"
)

type StatementRisk string

const (
	StatementRiskReadonly  StatementRisk = "readonly"
	StatementRiskMutating  StatementRisk = "mutating"
	StatementRiskDangerous StatementRisk = "dangerous"
)

var dangerousStatementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bdrop\s+(?:table|database|schema|view|index)\b`),
	regexp.MustCompile(`\btruncate\b`),
	regexp.MustCompile(`\bdelete\s+from\s+\S+\s*$`),
	regexp.MustCompile(`\battach\s+database\b`),
}

var readonlyVerbs = map[string]struct{}{
	"describe": {},
	"explain":  {},
	"select":   {},
	"show":     {},
	"values":   {},
	"with":     {},
}

var mutatingKeywords = map[string]struct{}{
	"alter":    {},
	"attach":   {},
	"create":   {},
	"delete":   {},
	"detach":   {},
	"drop":     {},
	"grant":    {},
	"insert":   {},
	"merge":    {},
	"reindex":  {},
	"revoke":   {},
	"truncate": {},
	"update":   {},
	"upsert":   {},
	"vacuum":   {},
}

// ClassifyStatementRisk is a conservative, keyword-level read-only check. Anything it
// cannot prove to be a plain query is reported as mutating.
func ClassifyStatementRisk(query string) StatementRisk {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return StatementRiskMutating
	}
	segments := splitStatements(trimmed)
	if len(segments) == 0 {
		return StatementRiskMutating
	}
	for _, seg := range segments {
		lower := strings.ToLower(stripLiterals(seg))
		for _, p := range dangerousStatementPatterns {
			if p.MatchString(lower) {
				return StatementRiskDangerous
			}
		}
	}
	for _, seg := range segments {
		if !isReadonlyStatement(seg) {
			return StatementRiskMutating
		}
	}
	return StatementRiskReadonly
}

// splitStatements splits on semicolons outside quotes and comments.
func splitStatements(query string) []string {
	var out []string
	var sb strings.Builder
	var quote rune
	runes := []rune(query)
	flush := func() {
		part := strings.TrimSpace(sb.String())
		if part != "" {
			out = append(out, part)
		}
		sb.Reset()
	}
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if quote != 0 {
			sb.WriteRune(ch)
			if ch == quote {
				// Doubled quote is an escaped quote.
				if i+1 < len(runes) && runes[i+1] == quote {
					sb.WriteRune(runes[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			sb.WriteRune(ch)
		case ch == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			sb.WriteRune(' ')
		case ch == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			sb.WriteRune(' ')
		case ch == ';':
			flush()
		default:
			sb.WriteRune(ch)
		}
	}
	flush()
	return out
}

// stripLiterals blanks quoted string contents so keywords inside them are ignored.
func stripLiterals(stmt string) string {
	var sb strings.Builder
	var quote rune
	for _, ch := range stmt {
		if quote != 0 {
			if ch == quote {
				quote = 0
				sb.WriteRune(ch)
			}
			continue
		}
		if ch == '\'' {
			quote = ch
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

func isReadonlyStatement(stmt string) bool {
	fields := strings.Fields(strings.ToLower(stripLiterals(stmt)))
	if len(fields) == 0 {
		return false
	}
	verb := strings.TrimLeft(fields[0], "(")
	if verb == "pragma" {
		// Only reads of the form "PRAGMA table_info(x)" without assignment.
		return !strings.Contains(stmt, "=")
	}
	if _, ok := readonlyVerbs[verb]; !ok {
		return false
	}
	for _, f := range fields[1:] {
		word := strings.Trim(f, "(),")
		if _, bad := mutatingKeywords[word]; bad {
			return false
		}
	}
	return true
}
