package bundle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/graph"
	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/rorkai/21st-sub000/processor/ast/ts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buttonSource = `import { Slot } from "@radix-ui/react-slot"
import { cn } from "@/lib/utils"

export function Button({ className, ...props }) {
  return <Slot className={cn("btn", className)} {...props} />
}
`

const buttonDemo = `import { Button } from "@/components/ui/button"
import { Spinner } from "@/r/acme/spinner"

export function ButtonDemo() {
  return <Button><Spinner /></Button>
}
`

func newBuilder(t *testing.T, nodes ...*catalog.Node) *Builder {
	t.Helper()
	resolver := graph.NewResolver(catalog.NewMemory(nodes...), graph.Config{})
	return NewBuilder(resolver, nil, DefaultConfig(), nil)
}

func spinnerNode() *catalog.Node {
	return &catalog.Node{
		Ref:         catalog.Ref{Owner: "acme", Slug: "spinner", Category: "ui"},
		Code:        "import { motion } from \"motion/react\"\nexport function Spinner() { return null }\n",
		LibraryDeps: ast.LibraryDeps{"motion": ast.LatestTag},
	}
}

func TestBuilder_Build(t *testing.T) {
	b := newBuilder(t, spinnerNode())

	m, err := b.Build(context.Background(), BuildInput{
		Self:         catalog.Ref{Owner: "shadcn", Slug: "button", Category: "ui"},
		Component:    buttonSource,
		Demo:         buttonDemo,
		Dependencies: []catalog.Ref{{Owner: "acme", Slug: "spinner"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "/App.tsx", m.Entry)
	assert.Equal(t, "ButtonDemo", m.DemoEntry)
	assert.Equal(t, []string{"acme/spinner"}, m.Resolved)
	assert.Empty(t, m.Broken)

	assert.Equal(t, buttonSource, m.Files["/components/ui/button.tsx"])

	demo := m.Files["/demo.tsx"]
	assert.Contains(t, demo, `import { Button } from "./components/ui/button"`)
	assert.NotContains(t, demo, "@/components/ui/button")
	assert.Contains(t, demo, `import { Spinner } from "@/r/acme/spinner"`)

	assert.Contains(t, m.Files["/App.tsx"], `import { ButtonDemo } from "./demo"`)
	assert.Contains(t, m.Files["/App.tsx"], "<ButtonDemo />")
	assert.Contains(t, m.Files["/lib/utils.ts"], "twMerge")
	assert.Contains(t, m.Files["/styles/globals.css"], "@tailwind base")

	assert.Contains(t, m.Files["/components/acme/spinner.tsx"], "export function Spinner")
	assert.Equal(t, "export * from \"../acme/spinner\"\n", m.Files["/components/ui/spinner.tsx"])
	assert.Equal(t, "export * from \"../../components/acme/spinner\"\n", m.Files["/r/acme/spinner.tsx"])

	for _, lib := range []string{"react", "react-dom", "clsx", "tailwind-merge", "@radix-ui/react-slot", "motion"} {
		assert.Equal(t, ast.LatestTag, m.Dependencies[lib], lib)
	}
}

func TestBuilder_ComponentFileWinsOverShim(t *testing.T) {
	// A dependency sharing the component's slug and category must not
	// replace the component itself.
	dep := &catalog.Node{
		Ref:  catalog.Ref{Owner: "acme", Slug: "button", Category: "ui"},
		Code: "export function Button() { return null }",
	}
	b := newBuilder(t, dep)

	m, err := b.Build(context.Background(), BuildInput{
		Self:         catalog.Ref{Owner: "shadcn", Slug: "button"},
		Component:    buttonSource,
		Demo:         "export function ButtonDemo() { return null }",
		Dependencies: []catalog.Ref{{Owner: "acme", Slug: "button"}},
	})
	require.NoError(t, err)
	assert.Equal(t, buttonSource, m.Files["/components/ui/button.tsx"])
	assert.Contains(t, m.Files, "/components/acme/button.tsx")
}

func TestBuilder_DefaultExportedComponent(t *testing.T) {
	b := newBuilder(t)

	m, err := b.Build(context.Background(), BuildInput{
		Self:      catalog.Ref{Owner: "acme", Slug: "button"},
		Component: "export default function Button() { return <button /> }\n",
		Demo:      "import Button from \"@/components/ui/button\"\n\nexport function ButtonDemo() { return <Button /> }\n",
	})
	require.NoError(t, err)

	demo := m.Files["/demo.tsx"]
	assert.True(t, strings.HasPrefix(demo, "import Button from \"./components/ui/button\"\n"), demo)
	assert.NotContains(t, demo, "import { Button }")
	assert.NotContains(t, demo, "@/components/ui/button")
}

func TestInjectSelfImport(t *testing.T) {
	tests := []struct {
		name  string
		shape ts.ExportShape
		want  string
	}{
		{"named only", ts.ExportShape{Named: []string{"Button", "buttonVariants"}}, `import { Button, buttonVariants } from "./button"` + "\n"},
		{"default only", ts.ExportShape{Default: "Button"}, `import Button from "./button"` + "\n"},
		{"default and named", ts.ExportShape{Named: []string{"buttonVariants"}, Default: "Button"}, `import Button, { buttonVariants } from "./button"` + "\n"},
		{"default also named", ts.ExportShape{Named: []string{"Button"}, Default: "Button"}, `import { Button } from "./button"` + "\n"},
		{"nothing exported", ts.ExportShape{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want+"demo", injectSelfImport("demo", tt.shape, "./button"))
		})
	}
}

func TestBuilder_ShimForwardsDefaultExport(t *testing.T) {
	card := &catalog.Node{
		Ref:  catalog.Ref{Owner: "acme", Slug: "card", Category: "ui"},
		Code: "export default function Card() { return null }\n",
	}
	b := newBuilder(t, card)

	m, err := b.Build(context.Background(), BuildInput{
		Self:         catalog.Ref{Owner: "shadcn", Slug: "button"},
		Component:    buttonSource,
		Demo:         "export function ButtonDemo() { return null }",
		Dependencies: []catalog.Ref{{Owner: "acme", Slug: "card"}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"export * from \"../acme/card\"\nexport { default } from \"../acme/card\"\n",
		m.Files["/components/ui/card.tsx"])
	assert.Equal(t,
		"export * from \"../../components/acme/card\"\nexport { default } from \"../../components/acme/card\"\n",
		m.Files["/r/acme/card.tsx"])
}

func TestBuilder_BrokenDependencyIsReported(t *testing.T) {
	b := newBuilder(t)

	m, err := b.Build(context.Background(), BuildInput{
		Self:         catalog.Ref{Owner: "shadcn", Slug: "button"},
		Component:    buttonSource,
		Demo:         buttonDemo,
		Dependencies: []catalog.Ref{{Owner: "acme", Slug: "spinner"}},
	})
	require.NoError(t, err)
	require.Len(t, m.Broken, 1)
	assert.Equal(t, "acme/spinner", m.Broken[0].To.Key())
	assert.Empty(t, m.Resolved)
}

func TestBuilder_AmbiguousDependency(t *testing.T) {
	b := newBuilder(t)

	_, err := b.Build(context.Background(), BuildInput{
		Self:         catalog.Ref{Owner: "shadcn", Slug: "button"},
		Component:    buttonSource,
		Demo:         buttonDemo,
		Dependencies: []catalog.Ref{{Slug: "spinner", Category: "ui"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrAmbiguousPending))

	var amb *graph.AmbiguousError
	require.True(t, errors.As(err, &amb))
	assert.Len(t, amb.Pending, 1)
}

func TestBuilder_NoDemoEntry(t *testing.T) {
	b := newBuilder(t)

	_, err := b.Build(context.Background(), BuildInput{
		Self:      catalog.Ref{Owner: "shadcn", Slug: "button"},
		Component: buttonSource,
		Demo:      "export const Demo = () => null",
	})
	assert.ErrorIs(t, err, ErrNoDemoEntry)
}

func TestBuilder_MissingSlug(t *testing.T) {
	b := newBuilder(t)

	_, err := b.Build(context.Background(), BuildInput{Component: buttonSource, Demo: buttonDemo})
	assert.ErrorIs(t, err, ErrMissingSlug)
}

func TestBuilder_ParseFailure(t *testing.T) {
	b := newBuilder(t)

	_, err := b.Build(context.Background(), BuildInput{
		Self:      catalog.Ref{Owner: "shadcn", Slug: "button"},
		Component: "export \x00",
		Demo:      buttonDemo,
	})
	assert.ErrorIs(t, err, ast.ErrParseFailure)
}

func TestBuilder_Theme(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Theme = "dark"
	b := NewBuilder(graph.NewResolver(catalog.NewMemory(), graph.Config{}), nil, cfg, nil)

	m, err := b.Build(context.Background(), BuildInput{
		Self:      catalog.Ref{Owner: "shadcn", Slug: "button"},
		Component: buttonSource,
		Demo:      "export function ButtonDemo() { return null }",
	})
	require.NoError(t, err)
	assert.Contains(t, m.Files["/App.tsx"], `className="dark flex`)
	// Demo without self imports still gets the injected import.
	assert.Contains(t, m.Files["/demo.tsx"], `import { Button } from "./components/ui/button"`)
}

func TestRelImport(t *testing.T) {
	tests := []struct {
		from, to, want string
	}{
		{"/demo.tsx", "/components/ui/button.tsx", "./components/ui/button"},
		{"/components/ui/card.tsx", "/components/acme/card.tsx", "../acme/card"},
		{"/r/acme/card.tsx", "/components/acme/card.tsx", "../../components/acme/card"},
		{"/components/acme/a.tsx", "/components/acme/b.tsx", "./b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relImport(tt.from, tt.to), tt.from+" -> "+tt.to)
	}
}
