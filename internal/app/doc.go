// Package app wires configuration, logging, workload loading, and the
// scheduler together into a runnable application.
package app
