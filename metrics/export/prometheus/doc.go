// Package prometheus renders engine metrics in the Prometheus text
// exposition format. Mount Handler on /metrics; nothing is registered in a
// global registry.
package prometheus
