/*
Package observability turns engine lifecycle hooks into Prometheus metrics
and OpenTelemetry span events.

	metrics, err := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := metrics.Hooks().Merge(observability.SpanEvents())
	r := runner.New(deps, runner.WithHooks(hooks), runner.WithTracer(observability.Tracer(nil)))

The graph engine opens a span per run and per node; SpanEvents annotates
those spans, and Tracer picks the provider they are recorded with.
*/
package observability
