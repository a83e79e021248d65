package main

import (
	"github.com/Paintersrp/tripwire/internal/cli"
	"github.com/Paintersrp/tripwire/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
