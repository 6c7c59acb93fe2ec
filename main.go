package main

import "github.com/vibast-solutions/ms-go-chip-donations/cmd"

func main() {
	cmd.Execute()
}
