package main

import "github.com/jrsteele09/specranking-client/cmd/specranking/cmd"

func main() {
	cmd.Execute()
}
