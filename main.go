package main

import (
	"github.com/aludratest/aludra/cmd"
)

func main() {
	cmd.Execute()
}
