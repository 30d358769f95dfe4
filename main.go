// File: main.go
package main

import (
	"github.com/shoptalk-labs/shoptalk/cmd"
)

func main() {
	cmd.Execute()
}
