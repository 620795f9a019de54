/*
Package workers sizes and runs the bounded pools that drive orchestrator runs.

Size turns the configured workers value into a goroutine count. Zero falls
back to MV_WORKERS and then to runtime.GOMAXPROCS, which Go sets from the
container CPU limit rather than the host CPU count:

	n := workers.Size(cfg.Workers)

The reprocess dispatcher uses Size directly. Bulk commands use Batch, which
also clamps to the number of assets, and fan out with Each:

	results, ran := workers.Each(ctx, workers.Batch(cfg.Workers, len(ids)), ids, process)

Each returns results in input order. Items not yet started when ctx is
canceled report ran=false.
*/
package workers
