// Package retry turns a stream of error classifications into rate limit retry behavior:
// a visible countdown, an optional automatic retry, and manual retry and cancel controls.
//
// The Controller owns every timer it schedules. Each rate limit failure that differs from the
// previously reported one starts a new episode: the attempt counter increases, a backoff delay is
// computed, and a one second display tick counts the delay down to zero. When auto retry is enabled
// and the attempt is within MaxRetries the episode is armed, and the retry callback fires once the
// delay elapses.
//
// Basic Usage:
//
//	controller := retry.NewController(retry.Options{
//	    Config:  retry.Config{AutoRetry: true, MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
//	    OnRetry: func() { go widget.Regenerate(ctx) },
//	})
//	defer controller.Close()
//
//	controller.OnClassification(error_classifier.Classify(err))
//	state := controller.State() // {CountdownSeconds, IsAutoRetrying, Attempt}
//
// Backoff:
//
// A positive server hint (Retry-After) always wins and is capped at MaxDelay. Otherwise the delay is
// BaseDelay * 2^(attempt-1) plus up to 25% random jitter, capped at MaxDelay. The countdown shows the
// delay rounded up to whole seconds.
//
// Clocks:
//
// Timers come from a Scheduler. RealScheduler uses the runtime timers; ManualScheduler is a
// deterministic clock advanced explicitly, used by tests of anything that embeds a Controller.
package retry
