package main

import (
	"os"

	"github.com/sandeepkv93/checkin-gateway/internal/tools/deploycheck"
)

func main() {
	if err := deploycheck.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
