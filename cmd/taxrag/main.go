package main

import "taxrag/internal/cli"

func main() {
	cli.Execute()
}
