package main

import "github.com/chrisberkhout/restful-geof/cmd/geof"

func main() {
	geof.Main()
}
