/*
Package metrics exposes Prometheus counters, gauges, and histograms for
connection, command, store, notification, and retrieval activity, plus a
small dependency-free component health registry used by the /health
and /live HTTP endpoints.

Metrics are package-level prometheus collectors registered in init();
call Handler() to mount /metrics. Collector polls store cardinalities
into gauges on a timer.
*/
package metrics
