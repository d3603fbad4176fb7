package main

import (
	"log"
	"os"

	"github.com/kitab-ai/kitab/internal/server"
)

func main() {
	addr := os.Getenv("KITAB_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	if err := server.Run(os.Getenv("KITAB_CONFIG"), addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
