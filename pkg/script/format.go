package script

import (
	"fmt"
	"strings"

	"github.com/aretw0/promptflow/pkg/domain"
)

// Format renders a prompt template against st.
//
// Placeholders:
//
//	{state}                 the current result
//	{state.result}          the current result
//	{state[Label]}          snapshot entry of the node labelled Label
//	{state.snapshot[Label]} same as above; Label may be quoted
//	{state.history}         history as "role: content" lines
//
// Literal braces are written as {{ and }}.
func Format(tmpl string, st *domain.State) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			field := tmpl[i+1 : i+1+end]
			v, err := resolve(field, st)
			if err != nil {
				return "", err
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("single '}' at offset %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func resolve(field string, st *domain.State) (string, error) {
	field = strings.TrimSpace(field)
	switch field {
	case "state", "state.result":
		return st.Result, nil
	case "state.history":
		return HistoryText(st.History), nil
	}
	for _, prefix := range []string{"state.snapshot[", "state["} {
		if strings.HasPrefix(field, prefix) && strings.HasSuffix(field, "]") {
			key := strings.TrimSuffix(strings.TrimPrefix(field, prefix), "]")
			return st.Get(unquote(key)), nil
		}
	}
	return "", fmt.Errorf("unknown placeholder {%s}", field)
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// HistoryText renders messages as "role: content" lines.
func HistoryText(history []domain.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
