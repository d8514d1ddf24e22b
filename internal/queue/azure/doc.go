// Package azure implements queue.Service against Azure Queue Storage.
//
// The client speaks the Queue service REST API directly: queues are
// addressed as /{queue}, messages as /{queue}/messages. Responses are XML
// and are mapped to the provider-neutral types in internal/queue by the
// Parse* functions in this package.
//
// Authentication is limited to a shared access signature appended to every
// request's query string. SharedKey request signing is not implemented.
//
//	client, err := azure.NewClient("https://account.queue.core.windows.net/",
//	    azure.WithSASToken(os.Getenv("NIMBUS_AZURE_SAS_TOKEN")))
//	if err != nil {
//	    return err
//	}
//	resp, err := client.Get(ctx, "myqueue", 2)
package azure
