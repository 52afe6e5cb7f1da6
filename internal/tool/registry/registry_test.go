package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/tool"
	gerrors "toolgate/pkg/errors"
)

type named struct{ name string }

func (n named) Name() string        { return n.name }
func (n named) Description() string { return "tool " + n.name }
func (n named) Schema() tool.Schema { return tool.Schema{Type: "object"} }
func (n named) Execute(_ context.Context, in map[string]any) (tool.ToolResult, error) {
	return tool.ToolResult{Content: n.name}, nil
}

type tagged struct {
	tool.Tool
	tag string
}

func (t tagged) Execute(ctx context.Context, in map[string]any) (tool.ToolResult, error) {
	res, err := t.Tool.Execute(ctx, in)
	res.Content = t.tag + "(" + res.Content + ")"
	return res, err
}

func (t tagged) Unwrap() tool.Tool { return t.Tool }

func tag(s string) tool.Middleware {
	return func(t tool.Tool) tool.Tool { return tagged{Tool: t, tag: s} }
}

func TestRegistry_MiddlewareOrder(t *testing.T) {
	r := New(tag("inner"), tag("outer"))
	require.NoError(t, r.Register(named{"b"}))
	require.NoError(t, r.Register(named{"a"}))

	res, err := r.Execute(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Equal(t, "outer(inner(a))", res.Content)

	got, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, named{"b"}, tool.Innermost(got))

	assert.Equal(t, []string{"a", "b"}, r.Names())
	ds := r.Descriptors()
	require.Len(t, ds, 2)
	assert.Equal(t, "a", ds[0].Name)
	assert.Equal(t, "tool b", ds[1].Description)
}

func TestRegistry_Errors(t *testing.T) {
	r := New()
	assert.True(t, errors.Is(r.Register(nil), gerrors.ErrInvalidArg))
	assert.True(t, errors.Is(r.Register(named{""}), gerrors.ErrInvalidArg))

	_, err := r.Execute(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, gerrors.ErrNotFound))
}

func TestRegistry_Replace(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(named{"x"}))
	require.NoError(t, r.Register(tagged{Tool: named{"x"}, tag: "v2"}))
	res, err := r.Execute(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2(x)", res.Content)
	assert.Len(t, r.Names(), 1)
}
