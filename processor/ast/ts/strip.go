package ts

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// StripResult is the outcome of removing self imports from demo text.
type StripResult struct {
	// ModifiedText is the demo text with the matching statements removed.
	ModifiedText string `json:"modified_text"`
	// Removed holds the removed statements verbatim, in source order.
	Removed []string `json:"removed"`
}

// StripSelfImports removes import statements that bring the published
// component's own symbols into demo text; those imports are injected
// automatically. A statement is removed when any of its bindings equals one
// of selfNames or extends one as a strict prefix (ButtonDemo1 for Button).
// Each statement's span is deleted together with one trailing line break.
func StripSelfImports(ctx context.Context, demoText string, selfNames []string) (StripResult, error) {
	tree, err := Parse(ctx, demoText)
	if err != nil {
		return StripResult{}, err
	}
	defer tree.Close()

	return StripTree(tree, selfNames), nil
}

// StripTree is StripSelfImports over an already parsed tree.
func StripTree(tree *Tree, selfNames []string) StripResult {
	type span struct{ start, end uint32 }
	var spans []span

	walk(tree.Root(), func(node *sitter.Node) bool {
		if node.Type() != "import_statement" {
			return true
		}
		if IsSelfBinding(tree.importBindings(node), selfNames) {
			end := node.EndByte()
			for end > node.StartByte() && isSpace(tree.source[end-1]) {
				end--
			}
			spans = append(spans, span{node.StartByte(), end})
		}
		return false
	})

	text := string(tree.source)
	result := StripResult{ModifiedText: text, Removed: make([]string, 0, len(spans))}
	if len(spans) == 0 {
		return result
	}

	for _, s := range spans {
		result.Removed = append(result.Removed, text[s.start:s.end])
	}

	// Remove back to front so earlier offsets stay valid.
	out := text
	for i := len(spans) - 1; i >= 0; i-- {
		start, end := int(spans[i].start), int(spans[i].end)
		switch {
		case strings.HasPrefix(out[end:], "\r\n"):
			end += 2
		case strings.HasPrefix(out[end:], "\n"):
			end++
		}
		out = out[:start] + out[end:]
	}
	result.ModifiedText = out
	return result
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// IsSelfBinding reports whether any binding names one of selfNames, either
// exactly or as a longer name with a self name as prefix.
func IsSelfBinding(bindings, selfNames []string) bool {
	for _, binding := range bindings {
		for _, self := range selfNames {
			if self == "" {
				continue
			}
			if binding == self || strings.HasPrefix(binding, self) {
				return true
			}
		}
	}
	return false
}
