package main

import "github.com/3leaps/mediagrab/internal/cmd"

func main() {
	cmd.Execute()
}
