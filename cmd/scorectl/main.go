// Underwriter - Rule-based bank eligibility scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import "github.com/opensource-finance/underwriter/internal/cli"

// Version is set via ldflags.
var Version = "dev"

func main() {
	cli.Execute(Version)
}
