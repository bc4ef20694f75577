package main

import "VammLedger/internal/cli"

func main() {
	cli.Execute()
}
