package main

import "github.com/blocktap/govhd/cmd"

func main() {
	cmd.Execute()
}
