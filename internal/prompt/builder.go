// Package prompt renders the textual instructions handed to the AI
// assistant for a batch of defects in one file, per spec.md §4.3.
package prompt

import (
	"strings"
	"text/template"

	"github.com/stomper-go/stomper/internal/defect"
	"github.com/stomper-go/stomper/internal/learning"
)

// Builder renders fix-request prompts. It embeds no file contents: the
// assistant is expected to read the worktree itself.
type Builder struct {
	tmpl *template.Template
}

// NewBuilder parses the built-in prompt template.
func NewBuilder() (*Builder, error) {
	tmpl, err := template.New("fix-request").Parse(defaultTemplate)
	if err != nil {
		return nil, err
	}
	return &Builder{tmpl: tmpl}, nil
}

type templateData struct {
	WorktreePath      string
	RetryCount        int
	Strategy          learning.AdaptiveStrategy
	Defects           []defect.Defect
	File              string
	IncludeExamples   bool
	IncludeHistory    bool
	SuggestedApproach string
}

// Build renders the prompt for defects (all from one file), the worktree
// path the assistant may read/write, the current retry count, and the
// strategy the learning store derived for this attempt.
func (b *Builder) Build(defects []defect.Defect, worktreePath string, retryCount int, strategy learning.AdaptiveStrategy) (string, error) {
	if len(defects) == 0 {
		return "", errEmptyDefects
	}

	data := templateData{
		WorktreePath:      worktreePath,
		RetryCount:        retryCount,
		Strategy:          strategy,
		Defects:           defects,
		File:              defects[0].File,
		IncludeExamples:   strategy.IncludeExamples,
		IncludeHistory:    strategy.IncludeHistory,
		SuggestedApproach: strategy.SuggestedApproach,
	}

	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type promptError string

func (e promptError) Error() string { return string(e) }

const errEmptyDefects promptError = "prompt: defects must be non-empty"

const defaultTemplate = `You are fixing quality issues in a single file: {{.File}}

Work only inside this directory tree: {{.WorktreePath}}
Read the file yourself before editing it; this prompt does not include its contents.

{{if eq (len .Defects) 1}}There is 1 issue to fix:{{else}}There are {{len .Defects}} issues to fix:{{end}}
{{range .Defects}}- [{{.Tool}}:{{.Code}}] {{.File}}:{{.Line}}:{{.Column}} {{.Severity}}: {{.Message}}
{{end}}
{{if gt .RetryCount 0}}This is retry attempt {{.RetryCount}}. A previous attempt did not fully resolve these issues.
{{end}}
{{if .Strategy.Verbosity}}Response detail level: {{.Strategy.Verbosity}}
{{end}}
{{if .IncludeHistory}}This codebase has a recorded history of attempts for one or more of these error codes. Take extra care to address the root cause rather than superficially silencing the diagnostic.
{{end}}
{{if .IncludeExamples}}Favor a fix that follows the surrounding code's existing conventions; look at nearby code for the idiom already in use before introducing a new one.
{{end}}
{{if .SuggestedApproach}}Hint from prior attempts: {{.SuggestedApproach}}
{{end}}
Make the minimal change needed to resolve each listed issue without introducing new ones. Do not modify files outside {{.WorktreePath}}.
`
