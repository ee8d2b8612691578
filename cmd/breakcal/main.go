package main

import "breakcal/internal/cli"

var version = "0.1.0-dev"

func main() {
	cli.SetVersion(version)
	cli.Execute()
}
