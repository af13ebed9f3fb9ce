package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamwimham/neuroflow/core"
)

func TestFunctionDefinition(t *testing.T) {
	f := NewFunction("echo", "Echo the input", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		})

	def := f.Definition()
	assert.Equal(t, "echo", def.Name)
	assert.Equal(t, core.BackendInProcess, def.Backend)
}

func TestNewFunctionFromStruct(t *testing.T) {
	type sumArgs struct {
		A float64 `json:"a" description:"First addend"`
		B float64 `json:"b" description:"Second addend"`
	}

	f := NewFunctionFromStruct("calculate_sum", "Calculate the sum of two numbers", sumArgs{},
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		})

	params := f.Definition().Parameters
	require.NotNil(t, params)
	props := params["properties"].(map[string]any)
	assert.Equal(t, "number", props["a"].(map[string]any)["type"])
	assert.Equal(t, "First addend", props["a"].(map[string]any)["description"])
	assert.ElementsMatch(t, []string{"a", "b"}, params["required"])
}

func TestFunctionExecutorErrorWrapping(t *testing.T) {
	exec := NewFunctionExecutor()
	exec.Add(NewFunction("fails", "Always fails", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("downstream unavailable")
		}))
	exec.Add(NewFunction("custom", "Fails with a custom code", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, core.NewCapabilityError("custom", "quota exceeded", "QUOTA_ERROR")
		}))

	inv := core.NewCapabilityInvocation("fails", nil, 0)
	_, err := exec.Execute(context.Background(), core.CapabilityDefinition{}, inv)
	var capErr *core.CapabilityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, core.CodeExecutionError, capErr.Code)
	assert.Equal(t, "downstream unavailable", capErr.Message)

	inv = core.NewCapabilityInvocation("custom", nil, 0)
	_, err = exec.Execute(context.Background(), core.CapabilityDefinition{}, inv)
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, "QUOTA_ERROR", capErr.Code)
}

func TestFunctionExecutorUnboundHandler(t *testing.T) {
	exec := NewFunctionExecutor()
	inv := core.NewCapabilityInvocation("ghost", nil, 0)
	_, err := exec.Execute(context.Background(), core.CapabilityDefinition{}, inv)
	var capErr *core.CapabilityError
	require.True(t, errors.As(err, &capErr))
	assert.Contains(t, capErr.Message, "no in-process handler")
}

type fakeRunner struct {
	result any
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, def core.CapabilityDefinition, args map[string]any) (any, error) {
	return f.result, f.err
}

func TestSandboxExecutor(t *testing.T) {
	inv := core.NewCapabilityInvocation("run_code", map[string]any{"code": "print(1)"}, 0)

	// No runner configured: fails, never panics.
	_, err := NewSandboxExecutor(nil).Execute(context.Background(), core.CapabilityDefinition{}, inv)
	var capErr *core.CapabilityError
	require.True(t, errors.As(err, &capErr))
	assert.Contains(t, capErr.Message, "no sandbox runner")

	// Runner result is passed through.
	out, err := NewSandboxExecutor(&fakeRunner{result: "1\n"}).Execute(context.Background(), core.CapabilityDefinition{}, inv)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	// Runner errors are wrapped.
	_, err = NewSandboxExecutor(&fakeRunner{err: errors.New("oom killed")}).Execute(context.Background(), core.CapabilityDefinition{}, inv)
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, core.CodeExecutionError, capErr.Code)
}
