package prompts

import (
	"context"
	"embed"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Template names. The four classifier criteria share their names with
// graders.Criterion.
const (
	Route         = "route"
	Relevance     = "relevance"
	Hallucination = "hallucination"
	Answer        = "answer"
	Generate      = "generate"
	Rewrite       = "rewrite"
)

//go:embed template/*.txt
var templateFS embed.FS

type pair struct {
	system string
	user   string
}

var templates = mustLoad(Route, Relevance, Hallucination, Answer, Generate, Rewrite)

func mustLoad(names ...string) map[string]pair {
	out := make(map[string]pair, len(names))
	for _, n := range names {
		sys, err := templateFS.ReadFile("template/" + n + ".system.txt")
		if err != nil {
			panic(fmt.Sprintf("prompts: missing system template %q: %v", n, err))
		}
		usr, err := templateFS.ReadFile("template/" + n + ".user.txt")
		if err != nil {
			panic(fmt.Sprintf("prompts: missing user template %q: %v", n, err))
		}
		out[n] = pair{system: string(sys), user: string(usr)}
	}
	return out
}

// Has reports whether a template with the given name exists.
func Has(name string) bool {
	_, ok := templates[name]
	return ok
}

// Render formats the named system/user template pair through the Eino
// prompt component, which triggers Prompt callbacks.
func Render(ctx context.Context, name string, vars map[string]string) ([]*schema.Message, error) {
	p, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt %q", name)
	}
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(p.system),
		schema.UserMessage(p.user),
	)
	values := make(map[string]any, len(vars))
	for k, v := range vars {
		values[k] = v
	}
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      name,
		Type:      "GoTemplate",
		Component: components.ComponentOfPrompt,
	})
	msgs, err := tpl.Format(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("%s prompt: %w", name, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s prompt: empty result", name)
	}
	return msgs, nil
}
