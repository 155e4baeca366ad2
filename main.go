package main

import "github.com/vacp2p/simsched/cmd"

func main() {
	cmd.Execute()
}
