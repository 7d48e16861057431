package main

import "github.com/pop-os/popopt/cmd"

func main() {
	cmd.Execute()
}
