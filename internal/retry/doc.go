/*
Package retry schedules deferred orchestrator runs for assets that still
lack derivatives.

Tasks live in the retry_tasks table, so a scheduled retry survives a
restart. At most one pending task exists per asset: scheduling while one is
pending is a no-op, while scheduling during a running task queues a fresh
pending one for the next pass.

Delays grow exponentially:

	delay(attempt) = Delay * 2^(attempt-1), capped at MaxDelay

and attempts beyond MaxAttempts are refused with ErrExhausted (0 disables
the bound).

The Worker polls due tasks, marks them running and hands each one to a
RunFunc. Tasks left running by a crashed process are returned to pending
once their lease expires, which gives at-least-once delivery.
*/
package retry
