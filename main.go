package main

import "github.com/khanhnv2901/cybersafe/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
