// Package retry provides backoff schedules and a retry executor.
//
// Backoff strategies compute the pause after a number of consecutive
// failures. The acceptor uses them between failed accepts:
//
//	backoff := retry.NewExponentialBackoff(5*time.Millisecond,
//		retry.WithBackoffMaxDelay(time.Second),
//		retry.WithBackoffJitter(retry.EqualJitter))
//	time.Sleep(backoff.NextDelay(failures))
//
// Retry policies decide whether a failed operation runs again. The server
// binds its listening socket through an executor so that a restart can wait
// for the previous process's socket to leave TIME_WAIT:
//
//	policy := retry.NewExponentialBackoffRetry(5, 100*time.Millisecond,
//		retry.WithRetryCondition(retry.AddrInUseCondition),
//		retry.WithJitter(true, 0.1)).WithLimits(2, 5*time.Second)
//	executor := retry.NewRetryExecutor(policy,
//		retry.WithEventHandler(retry.NewLogEventHandler(logger)))
//
//	ln, err := retry.ExecuteWithName(executor, ctx, "listen",
//		func(ctx context.Context) (net.Listener, error) {
//			return lc.Listen(ctx, "tcp", addr)
//		})
//
// The executor stops waiting as soon as ctx is done. GetStats reports how many
// attempts and how much delay the last run took.
package retry
