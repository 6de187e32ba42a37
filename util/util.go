package util

import (
	"io"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uber-go/tally/v4"
	"github.com/uber-go/tally/v4/prometheus"
	"go.uber.org/zap"
)

var PrometheusSanitizeOptions = tally.SanitizeOptions{
	NameCharacters: tally.ValidCharacters{
		Ranges:     tally.AlphanumericRange,
		Characters: tally.UnderscoreCharacters,
	},
	KeyCharacters: tally.ValidCharacters{
		Ranges:     tally.AlphanumericRange,
		Characters: tally.UnderscoreCharacters,
	},
	ValueCharacters: tally.ValidCharacters{
		Ranges:     tally.AlphanumericRange,
		Characters: tally.UnderscoreDashDotCharacters,
	},
	ReplacementCharacter: tally.DefaultReplacementCharacter,
}

func StringPtr(s string) *string {
	return &s
}

// NewPrometheusScope returns a metrics scope backed by a private prometheus
// registry together with the handler that exposes it.
func NewPrometheusScope(logger *zap.Logger, prefix string) (tally.Scope, io.Closer, http.Handler) {
	registry := prom.NewRegistry()

	reporter := prometheus.NewReporter(prometheus.Options{
		Registerer:       registry,
		DefaultTimerType: prometheus.HistogramTimerType,
		OnRegisterError: func(err error) {
			logger.Error("error in prometheus reporter", zap.Error(err))
		},
	})

	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		CachedReporter:  reporter,
		Separator:       prometheus.DefaultSeparator,
		SanitizeOptions: &PrometheusSanitizeOptions,
		Prefix:          prefix,
	}, time.Second)

	logger.Info("prometheus metrics scope created", zap.String("prefix", prefix))

	return scope, closer, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
