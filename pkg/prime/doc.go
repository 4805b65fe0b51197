// Package prime keeps the payload cache and the CDN in step with content
// changes.
//
// A content change (webhook delivery, admin edit, CLI run) is turned into a
// set of affected routes and surrogate keys. The pipeline then:
//   - evicts cached payloads tagged with those surrogate keys
//   - rebuilds the in-process search index
//   - reloads the affected routes with a bounded worker pool (default 8)
//     and writes the fresh payloads into the cache
//   - purges the surrogate keys at the CDN so edges refetch warm pages
//
// Every step logs and counts its failures and carries on; a Report summarises
// the run.
//
// Example usage:
//
//	p := prime.New(ldr, cacheManager, purger, prime.DefaultConfig(), logger)
//	report := p.Prime(ctx, prime.Change{Slugs: []string{"negroni"}, Tags: []string{"gin"}})
package prime
