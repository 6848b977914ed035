package ts

import (
	"context"
	"errors"
	"testing"

	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripSelfImports(t *testing.T) {
	demo := "import { Button } from \"@/components/ui/button\"\nexport function Demo(){ return <Button/> }"

	result, err := StripSelfImports(context.Background(), demo, []string{"Button"})
	require.NoError(t, err)

	assert.Equal(t, "export function Demo(){ return <Button/> }", result.ModifiedText)
	assert.Equal(t, []string{`import { Button } from "@/components/ui/button"`}, result.Removed)
}

func TestStripSelfImports_PrefixMatch(t *testing.T) {
	demo := `import { ButtonDemo1 } from "./demos"
import { Card } from "@/components/ui/card"
import { Butt } from "./butt"

export function Demo() { return <Card><ButtonDemo1 /><Butt /></Card> }
`
	result, err := StripSelfImports(context.Background(), demo, []string{"Button"})
	require.NoError(t, err)

	want := `import { Card } from "@/components/ui/card"
import { Butt } from "./butt"

export function Demo() { return <Card><ButtonDemo1 /><Butt /></Card> }
`
	assert.Equal(t, want, result.ModifiedText)
	assert.Equal(t, []string{`import { ButtonDemo1 } from "./demos"`}, result.Removed)
}

func TestStripSelfImports_BindingForms(t *testing.T) {
	demo := `import Button from "./button"
import * as ButtonParts from "./parts"
import { Card as Button2 } from "./card"
import { Button as Btn } from "./btn"
import { Badge } from "./badge"
export function Demo() { return null }
`
	result, err := StripSelfImports(context.Background(), demo, []string{"Button"})
	require.NoError(t, err)

	want := `import { Button as Btn } from "./btn"
import { Badge } from "./badge"
export function Demo() { return null }
`
	assert.Equal(t, want, result.ModifiedText)
	assert.Equal(t, []string{
		`import Button from "./button"`,
		`import * as ButtonParts from "./parts"`,
		`import { Card as Button2 } from "./card"`,
	}, result.Removed)
}

func TestStripSelfImports_CRLFAndSemicolons(t *testing.T) {
	demo := "import { Tabs } from \"@/components/ui/tabs\";\r\nexport function Demo() { return <Tabs /> }\r\n"

	result, err := StripSelfImports(context.Background(), demo, []string{"Tabs"})
	require.NoError(t, err)

	assert.Equal(t, "export function Demo() { return <Tabs /> }\r\n", result.ModifiedText)
	assert.Equal(t, []string{`import { Tabs } from "@/components/ui/tabs";`}, result.Removed)
}

func TestStripSelfImports_MultipleSelfNames(t *testing.T) {
	demo := `import { Accordion, AccordionItem } from "@/components/ui/accordion"
import { motion } from "motion/react"
import { Tooltip } from "@/components/ui/tooltip"
export function Demo() { return null }`

	result, err := StripSelfImports(context.Background(), demo, []string{"Accordion", "Tooltip"})
	require.NoError(t, err)

	assert.Equal(t, "import { motion } from \"motion/react\"\nexport function Demo() { return null }", result.ModifiedText)
	assert.Len(t, result.Removed, 2)
}

func TestStripSelfImports_Idempotent(t *testing.T) {
	demo := `import { Button, ButtonProps } from "@/components/ui/button"
import { Card } from "@/components/ui/card"
export function Demo() { return <Card><Button /></Card> }
`
	first, err := StripSelfImports(context.Background(), demo, []string{"Button"})
	require.NoError(t, err)

	second, err := StripSelfImports(context.Background(), first.ModifiedText, []string{"Button"})
	require.NoError(t, err)

	assert.Equal(t, first.ModifiedText, second.ModifiedText)
	assert.Empty(t, second.Removed)
}

func TestStripSelfImports_NothingToStrip(t *testing.T) {
	demo := "export function Demo() { return null }\n"

	result, err := StripSelfImports(context.Background(), demo, []string{"Button"})
	require.NoError(t, err)
	assert.Equal(t, demo, result.ModifiedText)
	assert.Empty(t, result.Removed)

	result, err = StripSelfImports(context.Background(), "import { A } from \"a\"\n", nil)
	require.NoError(t, err)
	assert.Equal(t, "import { A } from \"a\"\n", result.ModifiedText)
}

func TestStripSelfImports_ParseFailure(t *testing.T) {
	_, err := StripSelfImports(context.Background(), "import \x00", []string{"Button"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ast.ErrParseFailure))
}

func TestIsSelfBinding(t *testing.T) {
	tests := []struct {
		name     string
		bindings []string
		self     []string
		want     bool
	}{
		{"exact", []string{"Button"}, []string{"Button"}, true},
		{"longer binding", []string{"ButtonDemo"}, []string{"Button"}, true},
		{"shorter binding", []string{"Butt"}, []string{"Button"}, false},
		{"unrelated", []string{"Card"}, []string{"Button"}, false},
		{"any binding matches", []string{"cn", "Card"}, []string{"Card"}, true},
		{"empty self name ignored", []string{"Card"}, []string{""}, false},
		{"no bindings", nil, []string{"Button"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSelfBinding(tt.bindings, tt.self))
		})
	}
}
