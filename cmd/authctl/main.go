package main

import "github.com/dmitrijs2005/gameauth/internal/authctl"

func main() {
	authctl.Execute()
}
