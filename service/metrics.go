package service

import (
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// MustRegisterMetrics registers the service metrics on the given registry.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(buildInfo)
}

// SampleBuildInfo sets the xmlstore_build_info gauge for the named program.
// It only needs to be called once, on startup.
func SampleBuildInfo(name string) {
	bi, _ := debug.ReadBuildInfo()
	goVersion, revision := buildVersions(bi)
	buildInfo.With(prometheus.Labels{
		"name":      name,
		"goversion": goVersion,
		"revision":  revision,
	}).Set(1)
}

func buildVersions(bi *debug.BuildInfo) (goVersion, revision string) {
	goVersion, revision = "undefined", "undefined"
	if bi == nil {
		return goVersion, revision
	}
	if bi.GoVersion != "" {
		goVersion = bi.GoVersion
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			revision = s.Value
		}
	}
	return goVersion, revision
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "xmlstore_build_info",
		Help: "Build information of the program using the XML store",
	},
	[]string{"name", "revision", "goversion"},
)
