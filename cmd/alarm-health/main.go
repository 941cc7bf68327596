package main

import "github.com/oshokin/alarm-health/cmd/alarm-health/cmd"

func main() {
	cmd.Execute()
}
