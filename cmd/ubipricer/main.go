package main

import (
	"ubi-pricer/internal/cli"
)

func main() {
	cli.Execute()
}
