package main

import (
	"github.com/Paintersrp/hookall/internal/cli"
	"github.com/Paintersrp/hookall/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
