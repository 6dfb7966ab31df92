package main

import "github.com/davarch/ci-tracker/cmd/ci-tracker/cli"

func main() {
	cli.Execute()
}
