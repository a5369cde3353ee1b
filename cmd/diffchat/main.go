package main

import (
	"os"

	"github.com/dshills/diffchat/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
