package main

import (
	"context"
	"os"

	"github.com/sandeepkv93/checkin-gateway/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
