/*
Package worker provides the fixed-size pool of long-lived workers that serve
connections taken from the hand-off queue.

# Overview

A Pool owns PoolSize workers created once at startup. Each worker loops:

 1. Dequeue an item, blocking while the queue is empty
 2. Run the Handler on it
 3. Close the item
 4. Go back to 1

Workers exit only when the queue is closed and drained, so every item that
made it into the queue is served exactly once.

# Failure isolation

A handler error or panic affects only the item being served. Panics are
recovered and reported as a *types.HandlerError carrying the worker id and the
stack trace. The item is still closed and the worker goes back to the queue.
Failures are counted in WorkerStats and passed to PoolConfig.ErrorHandler.

# Usage

	q, _ := queue.New[net.Conn](8192)
	pool, err := worker.NewPool(worker.DefaultPoolConfig(), q,
		func(ctx context.Context, conn net.Conn) error {
			_, err := io.Copy(conn, conn)
			return err
		})
	if err != nil {
		return err
	}
	if err := pool.Start(ctx); err != nil {
		return err
	}
	defer pool.Stop(context.Background())

Cancelling the context given to Start closes the queue, which is the same as
calling Stop without waiting.
*/
package worker
