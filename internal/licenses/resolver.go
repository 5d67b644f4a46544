package licenses

import "strings"

// ResolveExpression reduces an SPDX license expression to a single canonical
// license identifier when possible. Expressions that combine several distinct
// licenses (AND/OR/WITH over different identifiers) cannot be reduced and
// return ("", false); callers keep the raw expression in that case.
func ResolveExpression(expression string) (string, bool) {
	fields := strings.Fields(replaceParens(expression))
	var ids []string
	for _, field := range fields {
		switch strings.ToUpper(field) {
		case "AND", "OR", "WITH", "+":
			continue
		}
		ids = append(ids, field)
	}
	if len(ids) == 0 {
		return "", false
	}

	canonical, ok := CanonicalID(ids[0])
	if !ok {
		return "", false
	}
	for _, id := range ids[1:] {
		other, ok := CanonicalID(id)
		if !ok || other != canonical {
			return "", false
		}
	}
	return canonical, true
}

func replaceParens(expression string) string {
	replacer := strings.NewReplacer("(", " ", ")", " ")
	return replacer.Replace(expression)
}
