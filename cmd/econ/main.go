package main

import "github.com/tutu-network/econ/internal/cli"

func main() {
	cli.Execute()
}
