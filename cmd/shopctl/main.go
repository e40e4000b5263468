package main

import "shop-service/cmd/shopctl/commands"

func main() {
	commands.Execute()
}
