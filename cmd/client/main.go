package main

import (
	"context"
	"flag"
	"log"

	"github.com/parlorlabs/parlor/internal/client"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Chat server base URL")
	flag.Parse()

	log.SetFlags(0)

	sessions, err := client.DefaultSessionStore()
	if err != nil {
		log.Fatalf("Failed to locate session storage: %v", err)
	}

	app := client.NewApp(client.New(*serverURL), sessions)
	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("Client exited with error: %v", err)
	}
}
