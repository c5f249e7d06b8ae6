// Command classroll runs the attendance bot.
package main

import (
	"fmt"
	"os"

	"github.com/classroll/classroll-bot/cmd/bot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
