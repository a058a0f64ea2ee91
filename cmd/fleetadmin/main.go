package main

import "github.com/tpodg/fleetadmin/internal/cli"

func main() {
	cli.Execute()
}
