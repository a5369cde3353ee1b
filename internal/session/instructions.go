package session

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// metaTemplate renders the conversation metadata appended to a role prompt.
const metaTemplate = `[meta] feature={{ .Feature | default "none" }}, commits=[{{ .Commits | join ", " }}]`

var metaTmpl = template.Must(template.New("meta").Funcs(sprig.TxtFuncMap()).Parse(metaTemplate))

type metaData struct {
	Feature string
	Commits []string
}

// buildInstructions joins the role prompt and the metadata line.
func buildInstructions(rolePrompt, feature string, commits []string) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimRight(rolePrompt, "\n"))
	b.WriteString("\n\n")
	if err := metaTmpl.Execute(&b, metaData{Feature: feature, Commits: commits}); err != nil {
		return "", errors.Wrap(err, "rendering instructions")
	}
	return b.String(), nil
}
