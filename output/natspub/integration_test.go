//go:build integration

package natspub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opflow/input/generator"
	"github.com/c360/opflow/input/natssub"
	"github.com/c360/opflow/natsclient"
	"github.com/c360/opflow/output/collector"
	"github.com/c360/opflow/pipeline"
	"github.com/c360/opflow/variant"
)

func TestIntegration_Bridge(t *testing.T) {
	tc := natsclient.NewTestClient(t)
	peer := tc.Peer(t)

	sub, err := peer.SubscribeSync("opflow.bridge")
	require.NoError(t, err)

	src, err := natssub.New("remote", sub, natssub.Config{PollTimeout: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	sink, c, err := collector.New("sink", nil)
	require.NoError(t, err)

	downstream := pipeline.New()
	require.NoError(t, downstream.Add(src, sink))
	require.NoError(t, downstream.Connect("remote.out", "sink.in"))
	require.NoError(t, downstream.Start(context.Background()))

	var values []variant.Variant
	for i := int64(1); i <= 20; i++ {
		values = append(values, variant.New(i*i))
	}
	gen, err := generator.New("gen", generator.Config{Values: values})
	require.NoError(t, err)
	pub, publisher, err := New("pub", tc.Client, Config{Subject: "opflow.bridge", ForwardStop: true}, nil)
	require.NoError(t, err)

	upstream := pipeline.New()
	require.NoError(t, upstream.Add(gen, pub))
	require.NoError(t, upstream.Connect("gen.out", "pub.in"))
	require.NoError(t, upstream.Start(context.Background()))

	require.NoError(t, upstream.Wait())
	assert.Equal(t, 20, publisher.Published())

	done := make(chan error, 1)
	go func() { done <- downstream.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		downstream.Stop()
		t.Fatal("downstream pipeline did not end on the forwarded Stop")
	}

	got := c.Ints()
	require.Len(t, got, 20)
	for i, v := range got {
		assert.Equal(t, int64((i+1)*(i+1)), v)
	}
}
