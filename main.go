package main

import "trip-agent/cmd"

func main() {
	cmd.Execute()
}
