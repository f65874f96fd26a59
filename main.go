package main

import (
	"log"

	"shorts-creator/internal/bootstrap"
)

func main() {
	app, err := bootstrap.New()
	if err != nil {
		log.Fatalf("initialize application: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run application: %v", err)
	}
}
