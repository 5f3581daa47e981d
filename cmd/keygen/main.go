package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/ossdesk/ossdesk/pkg/crypto"
)

// Generates a random key suitable for the SECRET_KEY environment
// variable, which protects OAuth credentials at rest.
func main() {
	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d-byte secret key\n\n", crypto.KeySize)
	fmt.Println("SECRET_KEY (keep this secret!):")
	fmt.Println(base64.StdEncoding.EncodeToString(key))
}
