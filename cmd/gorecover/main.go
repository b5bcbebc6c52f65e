package main

import "github.com/MrEthical07/goRecover/cmd/gorecover/cmd"

func main() {
	cmd.Execute()
}
