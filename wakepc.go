package main

import (
	"github.com/joho/godotenv"

	cli "github.com/triolabs/wakepc/cmd/wakepc"
)

func main() {
	// Load .env if present; settings may reference ${VARS} from it.
	_ = godotenv.Load()

	cli.Execute()
}
