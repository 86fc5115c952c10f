package main

import "github.com/example/teesched/cmd"

func main() {
	cmd.Execute()
}
