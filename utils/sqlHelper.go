package utils

import (
	"bytes"
	"text/template"
)

// ExecTemplate renders a SQL template so optional filters can be spliced
// in before the query is bound. Values still go through placeholders;
// the template only toggles clauses.
func ExecTemplate(sqlTemplate string, data map[string]interface{}) (string, error) {
	t, err := template.New("sql").Parse(sqlTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
