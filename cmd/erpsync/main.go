package main

import "github.com/vietddude/erpsync/internal/cli"

func main() {
	cli.Execute()
}
