// Package main is the entry point for the fmscript CLI, a tool for running
// FileMaker server-side scripts over the Data API or the OData API.
package main

import (
	"fmscript/cli/cmd"
)

func main() {
	cmd.Execute()
}
