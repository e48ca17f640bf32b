/*
Package health provides liveness checks for the management API and for the
etcd of a registered cluster.

Three checkers implement the Checker interface:

	┌──────────────────────────────────────────────┐
	│              Checker Interface               │
	│  • Check(ctx) Result                         │
	│  • Type() CheckType                          │
	└──────┬───────────────┬───────────────┬───────┘
	       ▼               ▼               ▼
	┌────────────┐   ┌────────────┐   ┌────────────┐
	│ APIChecker │   │ TCPChecker │   │EtcdChecker │
	└────────────┘   └────────────┘   └────────────┘
	 GET /auth/csrf/  dial host:port   Browser.Health

APIChecker and TCPChecker back the "kvdeck ping" command. They use their own
HTTP client and never carry the session cookie, so a failing probe does not
trigger the auth-lost redirect. EtcdChecker wraps anything with a Health
method (keyspace.Browser) and reports which endpoints are down.

# Monitoring

Monitor runs a checker on an interval and folds each Result into a Status.
A target is marked unhealthy after Config.Retries consecutive failures and
healthy again after the first success:

	m := health.NewMonitor(health.NewEtcdChecker(browser), health.Config{
		Interval: 5 * time.Second,
		Retries:  3,
	}, nil)
	m.Run(ctx, func(s health.Status) {
		fmt.Println(s.Healthy, s.LastResult.Message)
	})

Run returns when ctx is done. "kvdeck etcd health --watch" uses it with the
signal context of the CLI.
*/
package health
