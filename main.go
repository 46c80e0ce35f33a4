package main

import "github.com/meshwire/linkctl/cmd"

func main() {
	cmd.Execute()
}
