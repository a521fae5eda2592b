package main

import "github.com/mcoot/matchsync/internal/cli"

func main() {
	cli.Execute()
}
