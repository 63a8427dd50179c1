package main

import (
	"os"

	"github.com/smazurov/prefork/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
