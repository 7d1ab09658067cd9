// Command tokengen mints a bearer token for a chat user. The surrounding
// platform normally issues tokens at login; this tool covers local
// development and support work.
//
// The signing secret is read from the terminal so it never lands in shell
// history; pass -s only in scripts.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/peertutor/tutorchat/internal/server/auth"
)

func main() {
	userID := flag.String("u", "", "user id to embed in the token")
	validity := flag.Int("t", 24*60, "token validity in minutes")
	secret := flag.String("s", "", "signing secret (prompted when empty)")
	flag.Parse()

	if *userID == "" {
		log.Fatal("missing -u user id")
	}

	key := []byte(*secret)
	if len(key) == 0 {
		fmt.Fprint(os.Stderr, "Signing secret: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatalf("reading secret: %v", err)
		}
		key = raw
	}
	if len(key) == 0 {
		log.Fatal("empty signing secret")
	}

	sessionID := uuid.NewString()
	token, err := auth.GenerateToken(*userID, sessionID, key, time.Duration(*validity)*time.Minute)
	if err != nil {
		log.Fatalf("minting token: %v", err)
	}

	fmt.Printf("session: %s\n", sessionID)
	fmt.Printf("token:   %s\n", token)
}
