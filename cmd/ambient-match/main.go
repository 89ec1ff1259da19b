package main

import (
	"fmt"
	"os"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
