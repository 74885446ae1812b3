package main

import (
	"github.com/miguelmartens/sidekv/cmd"
)

func main() {
	cmd.Execute()
}
