package main

import "lsphost/internal/cli"

func main() {
	cli.Execute()
}
