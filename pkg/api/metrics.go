package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// panpolCollector implements prometheus.Collector, reading the compile
// store and event buffer on each scrape.
type panpolCollector struct {
	srv *Server

	compilesTotal        *prometheus.Desc
	compileFailuresTotal *prometheus.Desc
	termsDroppedTotal    *prometheus.Desc

	lastCompileTimestamp *prometheus.Desc
	lastCompileDuration  *prometheus.Desc

	rulesGenerated        *prometheus.Desc
	addressesGenerated    *prometheus.Desc
	servicesGenerated     *prometheus.Desc
	applicationsGenerated *prometheus.Desc

	eventsBuffered *prometheus.Desc
}

func newCollector(srv *Server) *panpolCollector {
	return &panpolCollector{
		srv: srv,

		compilesTotal: prometheus.NewDesc(
			"panpol_compiles_total",
			"Total compile runs.",
			nil, nil,
		),
		compileFailuresTotal: prometheus.NewDesc(
			"panpol_compile_failures_total",
			"Total compile runs that failed.",
			nil, nil,
		),
		termsDroppedTotal: prometheus.NewDesc(
			"panpol_terms_dropped_total",
			"Total policy terms dropped across all compiles.",
			nil, nil,
		),
		lastCompileTimestamp: prometheus.NewDesc(
			"panpol_last_compile_timestamp_seconds",
			"Unix timestamp of the most recent compile.",
			nil, nil,
		),
		lastCompileDuration: prometheus.NewDesc(
			"panpol_last_compile_duration_seconds",
			"Duration of the most recent compile in seconds.",
			nil, nil,
		),
		rulesGenerated: prometheus.NewDesc(
			"panpol_rules_generated",
			"Security rules in the last successful document.",
			nil, nil,
		),
		addressesGenerated: prometheus.NewDesc(
			"panpol_addresses_generated",
			"Address objects in the last successful document.",
			nil, nil,
		),
		servicesGenerated: prometheus.NewDesc(
			"panpol_services_generated",
			"Service objects in the last successful document.",
			nil, nil,
		),
		applicationsGenerated: prometheus.NewDesc(
			"panpol_applications_generated",
			"Custom applications in the last successful document.",
			nil, nil,
		),
		eventsBuffered: prometheus.NewDesc(
			"panpol_api_events_buffered",
			"Compile events currently held in the event buffer.",
			nil, nil,
		),
	}
}

func (c *panpolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compilesTotal
	ch <- c.compileFailuresTotal
	ch <- c.termsDroppedTotal
	ch <- c.lastCompileTimestamp
	ch <- c.lastCompileDuration
	ch <- c.rulesGenerated
	ch <- c.addressesGenerated
	ch <- c.servicesGenerated
	ch <- c.applicationsGenerated
	ch <- c.eventsBuffered
}

func (c *panpolCollector) Collect(ch chan<- prometheus.Metric) {
	if store := c.srv.store; store != nil {
		compiles, failures := store.Counts()
		ch <- prometheus.MustNewConstMetric(c.compilesTotal, prometheus.CounterValue,
			float64(compiles))
		ch <- prometheus.MustNewConstMetric(c.compileFailuresTotal, prometheus.CounterValue,
			float64(failures))
		ch <- prometheus.MustNewConstMetric(c.termsDroppedTotal, prometheus.CounterValue,
			float64(store.DroppedTotal()))

		if res := store.Latest(); res != nil {
			ch <- prometheus.MustNewConstMetric(c.lastCompileTimestamp, prometheus.GaugeValue,
				float64(res.CompiledAt.Unix()))
			ch <- prometheus.MustNewConstMetric(c.lastCompileDuration, prometheus.GaugeValue,
				res.Duration.Seconds())
		}
		if res := store.LastGood(); res != nil {
			ch <- prometheus.MustNewConstMetric(c.rulesGenerated, prometheus.GaugeValue,
				float64(res.Stats.Rules))
			ch <- prometheus.MustNewConstMetric(c.addressesGenerated, prometheus.GaugeValue,
				float64(res.Stats.Addresses))
			ch <- prometheus.MustNewConstMetric(c.servicesGenerated, prometheus.GaugeValue,
				float64(res.Stats.Services))
			ch <- prometheus.MustNewConstMetric(c.applicationsGenerated, prometheus.GaugeValue,
				float64(res.Stats.Applications))
		}
	}

	if c.srv.eventBuf != nil {
		ch <- prometheus.MustNewConstMetric(c.eventsBuffered, prometheus.GaugeValue,
			float64(c.srv.eventBuf.Len()))
	}
}
