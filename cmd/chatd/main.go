package main

import (
	"log"

	"github.com/haontuhcmut/chat-app/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
