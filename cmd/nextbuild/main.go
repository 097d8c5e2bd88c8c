package main

import (
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/cmd/nextbuild/cli"
)

func main() {
	cli.Execute()
}
