package main

import "github.com/btree-query-bench/pagetree/cmd"

func main() {
	cmd.Execute()
}
