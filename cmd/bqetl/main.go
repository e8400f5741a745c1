package main

import (
	"os"
)

func main() {
	if err := prepare().Execute(); err != nil {
		os.Exit(1)
	}
}
