package service_test

import (
	"testing"

	"github.com/birdie-ai/xmlstore/service"
	"github.com/prometheus/client_golang/prometheus"
)

func TestBuildInfoSample(t *testing.T) {
	registry := prometheus.NewRegistry()
	service.MustRegisterMetrics(registry)
	service.SampleBuildInfo("xmlstore-test")

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, family := range families {
		if family.GetName() != "xmlstore_build_info" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "name" && label.GetValue() == "xmlstore-test" {
					if got := m.GetGauge().GetValue(); got != 1 {
						t.Fatalf("got build info %v; want 1", got)
					}
					return
				}
			}
		}
	}
	t.Fatalf("xmlstore_build_info{name=%q} not found", "xmlstore-test")
}
