package main

import "github.com/engramlabs/engram/cmd/engram/cli"

func main() {
	cli.Execute()
}
