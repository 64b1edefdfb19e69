package main

import "stooklijn/cmd"

func main() {
	cmd.Execute()
}
