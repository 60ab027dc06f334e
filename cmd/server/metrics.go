package main

import (
	"fmt"
	"net/http"
)

func (a *app) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	// Minimal Prometheus exposition format.
	as := a.alloc.Stats()
	fmt.Fprintf(rw, "# HELP somnarium_codes_allocated_total Codes allocated and stored.\n")
	fmt.Fprintf(rw, "# TYPE somnarium_codes_allocated_total counter\n")
	fmt.Fprintf(rw, "somnarium_codes_allocated_total %d\n", as.Allocated)

	fmt.Fprintf(rw, "# HELP somnarium_code_collisions_total Candidate codes rejected because they were taken.\n")
	fmt.Fprintf(rw, "# TYPE somnarium_code_collisions_total counter\n")
	fmt.Fprintf(rw, "somnarium_code_collisions_total %d\n", as.Collisions)

	fmt.Fprintf(rw, "# HELP somnarium_allocation_exhausted_total Allocations that ran out of attempts.\n")
	fmt.Fprintf(rw, "# TYPE somnarium_allocation_exhausted_total counter\n")
	fmt.Fprintf(rw, "somnarium_allocation_exhausted_total %d\n", as.Exhausted)

	fmt.Fprintf(rw, "# HELP somnarium_allocation_failures_total Allocations aborted by a storage or entropy error.\n")
	fmt.Fprintf(rw, "# TYPE somnarium_allocation_failures_total counter\n")
	fmt.Fprintf(rw, "somnarium_allocation_failures_total %d\n", as.Failures)

	hs := a.api.Stats()
	fmt.Fprintf(rw, "# HELP somnarium_http_requests_total API requests served.\n")
	fmt.Fprintf(rw, "# TYPE somnarium_http_requests_total counter\n")
	fmt.Fprintf(rw, "somnarium_http_requests_total %d\n", hs.Requests)

	fmt.Fprintf(rw, "# HELP somnarium_http_outcomes_total API outcomes by kind.\n")
	fmt.Fprintf(rw, "# TYPE somnarium_http_outcomes_total counter\n")
	fmt.Fprintf(rw, "somnarium_http_outcomes_total{outcome=%q} %d\n", "created", hs.Created)
	fmt.Fprintf(rw, "somnarium_http_outcomes_total{outcome=%q} %d\n", "lookup", hs.Lookups)
	fmt.Fprintf(rw, "somnarium_http_outcomes_total{outcome=%q} %d\n", "not_found", hs.NotFound)
	fmt.Fprintf(rw, "somnarium_http_outcomes_total{outcome=%q} %d\n", "bad_request", hs.BadRequest)
	fmt.Fprintf(rw, "somnarium_http_outcomes_total{outcome=%q} %d\n", "failure", hs.Failures)

	fs := a.feed.Stats()
	fmt.Fprintf(rw, "# HELP somnarium_feed_subscribers Connected feed subscribers.\n")
	fmt.Fprintf(rw, "# TYPE somnarium_feed_subscribers gauge\n")
	fmt.Fprintf(rw, "somnarium_feed_subscribers %d\n", fs.Subscribers)

	fmt.Fprintf(rw, "# HELP somnarium_feed_events_total Feed events by outcome.\n")
	fmt.Fprintf(rw, "# TYPE somnarium_feed_events_total counter\n")
	fmt.Fprintf(rw, "somnarium_feed_events_total{outcome=%q} %d\n", "published", fs.Published)
	fmt.Fprintf(rw, "somnarium_feed_events_total{outcome=%q} %d\n", "delivered", fs.Delivered)
	fmt.Fprintf(rw, "somnarium_feed_events_total{outcome=%q} %d\n", "dropped", fs.Dropped)

	if a.mirror != nil {
		ms := a.mirror.Stats()
		fmt.Fprintf(rw, "# HELP somnarium_mirror_files_total Files handed to the off-host mirror by outcome.\n")
		fmt.Fprintf(rw, "# TYPE somnarium_mirror_files_total counter\n")
		fmt.Fprintf(rw, "somnarium_mirror_files_total{outcome=%q} %d\n", "uploaded", ms.Uploaded)
		fmt.Fprintf(rw, "somnarium_mirror_files_total{outcome=%q} %d\n", "failed", ms.Failed)
		fmt.Fprintf(rw, "somnarium_mirror_files_total{outcome=%q} %d\n", "dropped", ms.Dropped)
		fmt.Fprintf(rw, "# HELP somnarium_mirror_queue_depth Files waiting for upload.\n")
		fmt.Fprintf(rw, "# TYPE somnarium_mirror_queue_depth gauge\n")
		fmt.Fprintf(rw, "somnarium_mirror_queue_depth %d\n", ms.QueueDepth)
	}

	if a.db != nil {
		if n, err := a.db.Count(r.Context()); err == nil {
			fmt.Fprintf(rw, "# HELP somnarium_concoctions_stored Concoctions in the store.\n")
			fmt.Fprintf(rw, "# TYPE somnarium_concoctions_stored gauge\n")
			fmt.Fprintf(rw, "somnarium_concoctions_stored %d\n", n)
		}
	} else if m, ok := a.store.(interface{ Len() int }); ok {
		fmt.Fprintf(rw, "# HELP somnarium_concoctions_stored Concoctions in the store.\n")
		fmt.Fprintf(rw, "# TYPE somnarium_concoctions_stored gauge\n")
		fmt.Fprintf(rw, "somnarium_concoctions_stored %d\n", m.Len())
	}
}
