package sqlgen

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsafeSQL marks generated statements that could modify or destroy data.
var ErrUnsafeSQL = errors.New("sqlgen: unsafe sql statement")

var (
	fencePattern     = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")
	statementPattern = regexp.MustCompile(`(?is)\b(SELECT|WITH)\b`)
	forbiddenPattern = regexp.MustCompile(`(?i)\b(DROP|DELETE|TRUNCATE|UPDATE|INSERT|ALTER|CREATE|GRANT|REVOKE|MERGE)\b`)
)

// Sanitize extracts a single runnable statement from raw model output and
// rejects anything that is not a plain read. Model output often wraps the
// statement in a markdown fence or prefixes it with commentary; both are
// stripped before the safety check so a hostile keyword cannot hide in
// either.
func Sanitize(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", fmt.Errorf("%w: empty statement", ErrUnsafeSQL)
	}

	if match := fencePattern.FindStringSubmatch(candidate); match != nil {
		candidate = strings.TrimSpace(match[1])
	}

	// Drop leading prose such as "Here is the query:".
	if loc := statementPattern.FindStringIndex(candidate); loc != nil {
		candidate = candidate[loc[0]:]
	} else {
		return "", fmt.Errorf("%w: no SELECT statement found", ErrUnsafeSQL)
	}

	candidate = strings.TrimSpace(candidate)
	for strings.HasSuffix(candidate, ";") {
		candidate = strings.TrimSpace(strings.TrimSuffix(candidate, ";"))
	}
	if candidate == "" {
		return "", fmt.Errorf("%w: empty statement", ErrUnsafeSQL)
	}

	if match := forbiddenPattern.FindString(stripStringLiterals(candidate)); match != "" {
		return "", fmt.Errorf("%w: forbidden keyword %q", ErrUnsafeSQL, strings.ToUpper(match))
	}
	return candidate, nil
}

// stripStringLiterals blanks single-quoted literals so keyword matching does
// not reject queries that merely mention a word like 'update' as data.
func stripStringLiterals(sqlText string) string {
	var builder strings.Builder
	builder.Grow(len(sqlText))
	inLiteral := false
	for i := 0; i < len(sqlText); i++ {
		ch := sqlText[i]
		if ch == '\'' {
			if inLiteral && i+1 < len(sqlText) && sqlText[i+1] == '\'' {
				i++
				continue
			}
			inLiteral = !inLiteral
			builder.WriteByte(ch)
			continue
		}
		if inLiteral {
			builder.WriteByte(' ')
			continue
		}
		builder.WriteByte(ch)
	}
	return builder.String()
}
