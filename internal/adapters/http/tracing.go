package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/telemetry"
)

// TracingMiddleware opens a server span per request and records route,
// method and status on it. The span context is stored in the user context
// so downstream calls join the same trace.
func TracingMiddleware() fiber.Handler {
	tracer := otel.Tracer(telemetry.ScopeName)
	propagator := otel.GetTextMapPropagator()

	return func(c *fiber.Ctx) error {
		// Pick up an upstream trace context if the client sent one.
		// Carrier keys are lowercased because fasthttp canonicalizes
		// header names while the propagator looks up "traceparent".
		carrier := propagation.MapCarrier{}
		c.Request().Header.VisitAll(func(k, v []byte) {
			carrier.Set(strings.ToLower(string(k)), string(v))
		})
		ctx := propagator.Extract(c.UserContext(), carrier)

		ctx, span := tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.SetUserContext(ctx)
		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}
		status := c.Response().StatusCode()

		span.SetName(c.Method() + " " + route)
		span.SetAttributes(
			attribute.String("http.request.method", c.Method()),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if status >= 500 {
			span.SetStatus(codes.Error, "")
		}

		return err
	}
}
