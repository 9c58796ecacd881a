package main

import "mallledger/cmd/ledgerctl/cmd"

func main() {
	cmd.Execute()
}
