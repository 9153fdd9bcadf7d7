package main

import "github.com/harlowdata/tailorcore/cmd"

func main() {
	cmd.Execute()
}
