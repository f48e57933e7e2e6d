/*
Package tracing wires OpenTelemetry tracing into the runner.

Setup installs a global tracer provider that exports over OTLP/HTTP when
an endpoint is configured; otherwise tracing stays a no-op. Tracer wraps
an OpenTelemetry tracer with the span helpers the rest of the code uses,
and HTTPMiddleware traces every API request.

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, logger)
	defer shutdown(context.Background())

	tracer := tracing.New("kothrunner")
	router.Use(tracing.HTTPMiddleware(tracer))

	ctx, span := tracer.Start(ctx, "game.play", attribute.Int("game.index", i))
	defer tracing.End(span, err)

Trace context propagates with W3C traceparent headers. Responses carry the
trace id in X-Trace-ID so it can be matched against logs.
*/
package tracing
