// Package supervisor runs a long-lived loop in a goroutine and restarts it
// when it fails.
//
// The TP-Link bridge supervises its poll loop with it: a loop that returns
// an error (typically wrapping tplink.ErrLoopFatal) is restarted after a
// delay, while a loop that returns nil because its context was cancelled is
// considered stopped.
//
// Features:
//   - Start/stop with context cancellation
//   - Automatic restart on failure with a fixed delay and attempt limit
//   - Panic recovery inside the supervised function
//   - Status and statistics for health reporting
//
// Example usage:
//
//	mgr := supervisor.NewManager(supervisor.Config{
//	    Name:               "poller",
//	    Run:                bridge.Poller().Run,
//	    RestartOnFailure:   true,
//	    RestartDelay:       5 * time.Second,
//	    MaxRestartAttempts: 10,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package supervisor
