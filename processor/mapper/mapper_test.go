package mapper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opflow/errors"
	"github.com/c360/opflow/operation"
	"github.com/c360/opflow/socket"
	"github.com/c360/opflow/variant"
)

func run(t *testing.T, op *operation.Operation, feeds map[string][]variant.Variant) ([]variant.Variant, []operation.Fault) {
	t.Helper()
	outs := make(map[string]*socket.Output)
	for name := range feeds {
		out := socket.NewOutput("test", name)
		require.NoError(t, socket.Connect(out, op.Input(name)))
		outs[name] = out
	}
	sink, err := socket.NewInput("test", "sink", socket.WithCapacity(64))
	require.NoError(t, err)
	require.NoError(t, socket.Connect(op.Output(Output), sink))

	faults := make(chan operation.Fault, 1)
	done := make(chan error, 1)
	go func() { done <- op.Run(context.Background(), faults) }()
	require.Eventually(t, func() bool { return op.State() == operation.Running }, 5*time.Second, time.Millisecond)

	for name, vs := range feeds {
		for _, v := range vs {
			require.NoError(t, outs[name].Relay(context.Background(), v))
		}
	}
	require.NoError(t, <-done)
	close(faults)

	var got []variant.Variant
	for {
		v, err := sink.Pop()
		if err != nil {
			break
		}
		got = append(got, v)
	}
	var fs []operation.Fault
	for f := range faults {
		fs = append(fs, f)
	}
	return got, fs
}

func TestMapper_AppliesFunction(t *testing.T) {
	op, err := New("double", Int64(func(x int64) int64 { return 2 * x }))
	require.NoError(t, err)

	got, faults := run(t, op, map[string][]variant.Variant{
		Input: {variant.New(int64(1)), variant.New(int64(5)), variant.Tag(variant.Stop)},
	})
	assert.Empty(t, faults)
	require.Len(t, got, 3)
	assert.True(t, variant.Equal(variant.New(int64(2)), got[0]))
	assert.True(t, variant.Equal(variant.New(int64(10)), got[1]))
	assert.True(t, got[2].Is(variant.Stop))
}

func TestMapper_EmptyResultDrops(t *testing.T) {
	op, err := New("evens", func(v variant.Variant) (variant.Variant, error) {
		if x, _ := variant.ValueAs[int64](v); x%2 != 0 {
			return variant.Empty(), nil
		}
		return v, nil
	})
	require.NoError(t, err)

	got, _ := run(t, op, map[string][]variant.Variant{
		Input: {variant.New(int64(1)), variant.New(int64(2)), variant.New(int64(3)), variant.Tag(variant.Stop)},
	})
	require.Len(t, got, 2)
	assert.True(t, variant.Equal(variant.New(int64(2)), got[0]))
}

func TestMapper_TypeMismatchFaults(t *testing.T) {
	op, err := New("strict", Int64(func(x int64) int64 { return x }))
	require.NoError(t, err)

	got, faults := run(t, op, map[string][]variant.Variant{
		Input: {variant.NewString("nope")},
	})
	require.Len(t, faults, 1)
	assert.ErrorIs(t, faults[0], errors.ErrTypeMismatch)
	require.Len(t, got, 1)
	assert.True(t, got[0].Is(variant.Stop))
}

func TestNewJoin(t *testing.T) {
	_, err := NewJoin("j", nil, func([]variant.Variant) (variant.Variant, error) { return variant.Empty(), nil })
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	op, err := NewJoin("concat", []string{"a", "b"}, func(vs []variant.Variant) (variant.Variant, error) {
		a, _ := variant.ValueAs[string](vs[0])
		b, _ := variant.ValueAs[string](vs[1])
		return variant.NewString(a + b), nil
	})
	require.NoError(t, err)

	got, _ := run(t, op, map[string][]variant.Variant{
		"a": {variant.NewString("x"), variant.NewString("y"), variant.Tag(variant.Stop)},
		"b": {variant.NewString("1"), variant.NewString("2")},
	})
	require.Len(t, got, 3)
	assert.Equal(t, `"x1"`, got[0].String())
	assert.Equal(t, `"y2"`, got[1].String())
}
