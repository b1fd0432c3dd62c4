package usecase

import (
	"bytes"
	"embed"
	"strings"
	"text/template"

	"taxrag/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Prompts renders the two instructions the chain sends to the model.
type Prompts struct {
	contextualize string
	qa            *template.Template
}

// LoadPrompts uses the embedded templates unless an override is given. The
// QA template receives {{.Context}}.
func LoadPrompts(contextualizeOverride, qaOverride string) (*Prompts, error) {
	const op = "usecase.prompts"

	contextualize := contextualizeOverride
	if strings.TrimSpace(contextualize) == "" {
		data, err := templateFS.ReadFile("templates/contextualize.tmpl")
		if err != nil {
			return nil, domain.E(domain.KindInvalidInput, op, err)
		}
		contextualize = string(data)
	}

	qaText := qaOverride
	if strings.TrimSpace(qaText) == "" {
		data, err := templateFS.ReadFile("templates/qa.tmpl")
		if err != nil {
			return nil, domain.E(domain.KindInvalidInput, op, err)
		}
		qaText = string(data)
	}
	if !strings.Contains(qaText, "{{.Context}}") {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "qa prompt must reference {{.Context}}")
	}

	qa, err := template.New("qa").Option("missingkey=error").Parse(qaText)
	if err != nil {
		return nil, domain.E(domain.KindInvalidInput, op, err)
	}
	return &Prompts{contextualize: strings.TrimSpace(contextualize), qa: qa}, nil
}

// MustLoadPrompts returns the embedded defaults and panics if they are broken.
func MustLoadPrompts() *Prompts {
	p, err := LoadPrompts("", "")
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Prompts) Contextualize() string {
	return p.contextualize
}

// QA renders the answer instruction with the chunk texts separated by blank
// lines.
func (p *Prompts) QA(chunks []domain.ScoredChunk) (string, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk.Text
	}

	var buf bytes.Buffer
	if err := p.qa.Execute(&buf, struct{ Context string }{strings.Join(texts, "\n\n")}); err != nil {
		return "", domain.E(domain.KindInvalidInput, "usecase.prompts", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
