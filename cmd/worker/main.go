package main

import (
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: worker <replay|migrate|pull> <userID> | worker sync-catalogue")
	}

	switch os.Args[1] {
	case "replay":
		RunReplay(os.Args[2:])
	case "migrate":
		RunMigrate(os.Args[2:])
	case "pull":
		RunPull(os.Args[2:])
	case "sync-catalogue":
		RunSyncCatalogue(os.Args[2:])
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
