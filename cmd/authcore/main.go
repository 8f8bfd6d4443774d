package main

import "github.com/procuregov/authcore/cmd/authcore/cmd"

func main() {
	cmd.Execute()
}
