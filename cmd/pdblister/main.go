package main

import "github.com/mvp-joe/pdblister/internal/cli"

func main() {
	cli.Execute()
}
