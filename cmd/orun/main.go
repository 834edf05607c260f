package main

import (
	"github.com/Paintersrp/orun/internal/cli"
	"github.com/Paintersrp/orun/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
