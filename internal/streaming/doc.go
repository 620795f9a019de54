/*
Package streaming guards media responses against slow or stalled clients.

The API server runs without a write timeout so that large video derivatives
can be delivered, which leaves a stalled connection free to hold a handler
forever. Wrap returns an http.ResponseWriter that bounds every write, drops
the stream after a period without progress, and stops as soon as the request
context ends:

	sw := streaming.Wrap(r.Context(), w, streaming.DefaultConfig())
	defer sw.Close()
	http.ServeFile(sw, r, path)
	if err := sw.Err(); err != nil {
		// the client stalled or went away
	}

Headers and status codes pass straight through, so range requests and
conditional GETs handled by http.ServeFile keep working.
*/
package streaming
