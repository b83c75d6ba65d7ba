// Package pagination coordinates paginated, infinitely scrolling list
// queries against the contest backend.
//
// A list screen describes what it wants with a Descriptor (resource and
// filters) and opens a Query through a Coordinator. Page 1 is requested
// immediately; further pages are requested with FetchNextPage as the viewer
// scrolls. Each page request carries page and limit followed by the filters:
//
//	/api/contests?page=2&limit=10&search=logo&status=all&type=Design
//
// Example usage:
//
//	coord := pagination.NewCoordinator(pagination.NewHTTPFetcher(c), pagination.DefaultOptions())
//	q := coord.Open(pagination.Descriptor{
//		Resource: "/api/contests",
//		Filters:  pagination.Filters{"search": "", "status": "all", "type": "all"},
//	})
//	defer q.Close()
//	snap, err := q.Wait(ctx)
//	for snap.HasNextPage {
//		q.FetchNextPage()
//		snap, err = q.Wait(ctx)
//	}
//
// The coordinator:
//   - Retries each page twice, one second apart, for server and network failures
//   - Keeps at most one fetch in flight per query
//   - Shares identical concurrent page fetches between queries
//   - Restores pages saved in the Store for five minutes instead of refetching
//     (DefaultOptions keeps them in memory; a nil Store turns this off)
//   - Drops results that arrive after a query was closed
//
// BatchFetcher fetches every page of a query in parallel for exports.
package pagination
