package main

import "github.com/BTreeMap/ClaimCheck/internal/cli"

func main() {
	cli.Execute()
}
