// Command admin-token prints the bcrypt hash to configure as ADMIN_TOKEN_HASH
// for the token given as the first argument or on stdin.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/bytestrike/faucet_bot/internal/auth"
)

func main() {
	token := ""
	if len(os.Args) > 1 {
		token = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "read token: %v\n", err)
			os.Exit(1)
		}
		token = line
	}

	hash, err := auth.HashToken(strings.TrimSpace(token))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
