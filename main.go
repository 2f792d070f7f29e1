package main

import (
	"github.com/tcptap/tcptap/cmd"
)

func main() {
	cmd.Execute()
}
