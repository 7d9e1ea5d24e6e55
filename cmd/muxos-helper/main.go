package main

import "github.com/muxos/muxos-helper/internal/cli"

func main() {
	cli.Execute()
}
