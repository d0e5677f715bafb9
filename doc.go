// Package blobs is a client for a multi-tenant blob store: named binary
// objects grouped in stores that belong to a site, or to a single deploy of
// that site.
//
// Credentials are read from the NETLIFY_BLOBS_CONTEXT environment variable
// when running on the platform, or supplied explicitly:
//
//	store, _ := blobs.GetStore("images",
//	    blobs.WithSiteID(siteID),
//	    blobs.WithToken(token),
//	)
//
//	// Write, with optional metadata
//	store.Set(ctx, "cats/tom.png", data, blobs.WithMetadata(map[string]any{"owner": "jerry"}))
//
//	// Read; nil means the key does not exist
//	data, _ := store.Get(ctx, "cats/tom.png")
//
//	// Read with etag and metadata, revalidating a cached copy
//	entry, _ := store.GetWithMetadata(ctx, "cats/tom.png", blobs.WithETag(cached.ETag))
//	if entry != nil && entry.Data == nil {
//	    // unchanged
//	}
//
//	// Conditional writes
//	res, _ := store.Set(ctx, "lock", nil, blobs.OnlyIfNew())
//	fmt.Println(res.Modified)
//
//	// Listing
//	list, _ := store.List(ctx, blobs.ListOptions{Prefix: "cats/"})
//
// Deploy-scoped stores:
//
//	store, _ := blobs.GetDeployStore(blobs.WithDeployID(deployID))
//
// When the context carries an edge URL every request goes straight to the
// edge; otherwise the management API issues a signed URL per read or write.
// Transient failures (5xx, 429, network errors) are retried with backoff.
package blobs
