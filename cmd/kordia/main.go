package main

import "github.com/kordia/kordia-go/internal/cli"

func main() {
	cli.Execute()
}
