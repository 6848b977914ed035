package ts

import (
	"context"
	"errors"
	"testing"

	"github.com/rorkai/21st-sub000/processor/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidSource(t *testing.T) {
	tree, err := Parse(context.Background(), `export function Button() { return <button className="btn" /> }`)
	require.NoError(t, err)
	defer tree.Close()

	assert.Equal(t, DialectTSX, tree.Dialect())
	assert.False(t, tree.HasErrors())
	assert.Equal(t, "program", tree.Root().Type())
}

func TestParse_MalformedSourceStillYieldsTree(t *testing.T) {
	tree, err := Parse(context.Background(), "export function Button( {\n  return <div>\n")
	require.NoError(t, err)
	defer tree.Close()

	assert.True(t, tree.HasErrors())
	assert.NotNil(t, tree.Root())
}

func TestParse_RejectsBinaryContent(t *testing.T) {
	_, err := Parse(context.Background(), "export const a = 1\x00\x01\x02")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ast.ErrParseFailure))

	var pe *ast.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 18, pe.Offset)
}

func TestParse_RejectsInvalidUTF8(t *testing.T) {
	_, err := Parse(context.Background(), "const a = \"\xff\xfe\"")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ast.ErrParseFailure))

	var pe *ast.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 11, pe.Offset)
}

func TestParseAs_UnknownDialect(t *testing.T) {
	_, err := ParseAs(context.Background(), "cobol", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ast.ErrParseFailure))
}

func TestParseFile_PicksDialectFromExtension(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		dialect string
	}{
		{"tsx", "button.tsx", DialectTSX},
		{"jsx", "button.jsx", DialectTSX},
		{"ts", "utils.ts", DialectTypeScript},
		{"js", "legacy.js", DialectJavaScript},
		{"unknown falls back to tsx", "README", DialectTSX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := ParseFile(context.Background(), tt.file, "export const a = 1")
			require.NoError(t, err)
			defer tree.Close()
			assert.Equal(t, tt.dialect, tree.Dialect())
		})
	}
}

func TestTree_CloseIsIdempotent(t *testing.T) {
	tree, err := Parse(context.Background(), "const a = 1")
	require.NoError(t, err)

	tree.Close()
	tree.Close()

	var nilTree *Tree
	nilTree.Close()
}

func TestRegistry_DialectsRegistered(t *testing.T) {
	for _, dialect := range []string{DialectTSX, DialectTypeScript, DialectJavaScript} {
		assert.True(t, ast.DefaultRegistry.HasDialect(dialect), dialect)
	}
}

func TestParse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parse(ctx, "export const a = 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ast.ErrParseFailure))
	assert.True(t, errors.Is(err, context.Canceled))
}
