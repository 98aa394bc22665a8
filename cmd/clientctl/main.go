package main

import (
	"fmt"
	"os"

	"github.com/edvin/clientops/internal/cli"
	"github.com/edvin/clientops/internal/style"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, style.ErrorLine.Render("error: "+err.Error()))
		os.Exit(1)
	}
}
