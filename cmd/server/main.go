package main

import (
	"fmt"
	"os"

	"github.com/NeveIsa/LEAP2/internal/server"

	// Built-in function sets register themselves.
	_ "github.com/NeveIsa/LEAP2/funcs"
)

func main() {
	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "leap-server: %v\n", err)
		os.Exit(1)
	}
}
