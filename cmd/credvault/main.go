package main

import (
	"github.com/miratopia/credvault/internal/cli"
	"github.com/miratopia/credvault/internal/util"
)

func main() {
	if err := cli.Execute(); err != nil {
		util.HandleError(err, "")
	}
}
