// Package workload loads declarative HCL grid files and compiles them into
// top-level tasks for the scheduler. A grid is a set of job blocks:
//
//	job "sleep" "warmup" {
//	  count    = 4
//	  duration = "250ms"
//	}
//
//	job "fanout" "bigcopy" {
//	  width    = 8
//	  duration = "100ms"
//	  finalize = true
//	}
//
// Job arguments are HCL expressions evaluated against a context exposing
// the process environment as env.<NAME>. Every job kind is registered with
// the transport codec so grids run unchanged under process isolation.
package workload
