// Package main is the entry point for twctl
package main

import (
	"github.com/example/trafficwatch/cmd/twctl/cmd"
)

func main() {
	cmd.Execute()
}
