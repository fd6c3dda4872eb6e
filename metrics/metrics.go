package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WritersOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icesink_writers_opened_total",
		Help: "Total number of file writers opened, by kind and file format.",
	}, []string{"kind", "format"})

	FilesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icesink_files_written_total",
		Help: "Total number of data and delete files completed.",
	}, []string{"content", "format"})

	BytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icesink_bytes_written_total",
		Help: "Total bytes of completed data and delete files.",
	}, []string{"format"})

	CatalogLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icesink_catalog_loads_total",
		Help: "Total number of table loads through a catalog.",
	}, []string{"result"})

	CatalogCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "icesink_catalog_cache_hits_total",
		Help: "Total number of table loads served from the catalog cache.",
	})

	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icesink_commits_total",
		Help: "Total number of snapshot commit attempts, by result.",
	}, []string{"result"})

	CommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "icesink_commit_duration_seconds",
		Help:    "Duration of snapshot commits including retries.",
		Buckets: prometheus.DefBuckets,
	})

	EqualityFieldOverrides = promauto.NewCounter(prometheus.CounterOpts{
		Name: "icesink_equality_field_overrides_total",
		Help: "Times configured equality columns differed from the table identifier fields.",
	})
)
