package main

import (
	"github.com/subosito/gotenv"
)

func main() {
	// .env is optional; real environment variables win
	_ = gotenv.Load()

	Execute()
}
