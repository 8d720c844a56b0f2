package main

import "github.com/AlexDid/simple-debts-api/cmd"

func main() {
	cmd.Run()
}
