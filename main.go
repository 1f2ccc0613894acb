package main

import "github.com/bcdannyboy/optrisk/cli"

func main() {
	cli.Execute()
}
