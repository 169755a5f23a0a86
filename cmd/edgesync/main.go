// Package main is the entry point for the edgesync demo CLI.
package main

import "github.com/edgesync/edgesync/internal/cli"

func main() {
	cli.Execute()
}
