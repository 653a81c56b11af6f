/*
Package observability exposes conversion activity as Prometheus metrics.

Metrics are fed by the service's lifecycle hooks, so the conversion pipeline
never imports Prometheus directly.
*/
package observability
