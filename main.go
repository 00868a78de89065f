package main

import (
	"flag"
	"os"

	"github.com/mockassist/mockassist/internal/app"
	log "github.com/sirupsen/logrus"
)

func init() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		log.SetLevel(log.InfoLevel)
		return
	}
	logrusLevel, err := log.ParseLevel(level)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(logrusLevel)
}

func main() {
	configPath := flag.String("config", "./config/application.yaml", "path to the YAML configuration file")
	flag.Parse()

	application, err := app.NewApplication(*configPath)
	if err != nil {
		log.Fatalf("failed to initialize simulator: %v", err)
	}
	if err := application.Run(); err != nil {
		log.Fatal(err)
	}
}
