package main

import "github.com/qrave1/roomspeak-mesh/cmd"

func main() {
	cmd.Execute()
}
