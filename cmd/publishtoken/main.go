// Mints publisher tokens for the order-creation workflow calling POST /api/orders/notify.

package main

import (
	"Menuboard/internal/auth"
	"Menuboard/pkg/log"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	envFile := flag.String("env", "config/dev.env", "path of the optional .env file holding PUBLISH_SECRET")
	subject := flag.String("sub", "order-workflow", "subject stamped into the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of the token")
	flag.Parse()

	logger := log.New("publishtoken")

	// A missing env file is fine, PUBLISH_SECRET may come from the environment
	_ = godotenv.Load(*envFile)
	token, err := auth.NewPublishToken(os.Getenv("PUBLISH_SECRET"), *subject, *ttl, time.Now())
	if err != nil {
		logger.Fatal().Err(err).Msg("Couldn't mint publisher token.")
	}
	fmt.Println(token)
}
