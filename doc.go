// Package luxanalytics is a client-side telemetry pipeline: it queues
// events durably and encrypted at rest, delivers them in batches to a
// configured collection endpoint, and degrades gracefully through offline
// periods, server errors, and sustained outages without ever blocking or
// panicking the calling application.
//
// A typical embedding application calls New, then Initialize once with a
// Config (or DSN string via config.FromDSN), then Track for each event and
// either relies on the auto-flush timer or calls Flush directly. Shutdown
// stops the timer and flushes the queue one last time.
package luxanalytics
