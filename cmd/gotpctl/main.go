// gotpctl is the CLI client for the gotpd daemon.
package main

import "github.com/dantte-lp/gotpd/cmd/gotpctl/commands"

func main() {
	commands.Execute()
}
