// Package natsclient wraps a NATS connection for the bridge operations in
// input/natssub and output/natspub.
//
// Connect retries with backoff from pkg/retry so a pipeline can be started
// while the server is still coming up. The client reports its status to the
// opflow_nats_connected gauge when built WithMetrics.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("opflow"),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// WithTLS takes a *tls.Config, usually from tlsutil.LoadClientConfig.
//
// Subscriptions are synchronous. A source operation polls Subscription.Next
// with a short timeout so it stays responsive to lifecycle commands.
package natsclient
