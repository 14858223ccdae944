/*
Package observability provides Prometheus collectors for the control plane.

Metrics implements message.Observer, so it can be handed to every exchange
with message.WithObserver, and it records storage requests and controller
handoffs. Collectors are registered on the Registerer passed to NewMetrics;
pass prometheus.NewRegistry() in tests to keep them isolated.
*/
package observability
