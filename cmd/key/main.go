// Command key mints a development JWT for exercising the HTTP and websocket
// endpoints locally. The secret must match jwt.secret_key in config.yaml.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"mech-dispatch/internal/cli"
)

func main() {
	userID := flag.String("user-id", "", "UUID of the user (subject)")
	role := flag.String("role", "CUSTOMER", "User role: CUSTOMER | MECHANIC | ADMIN")
	secret := flag.String("secret", "", "JWT HMAC secret (HS256)")
	flag.Parse()

	if *userID == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: key --user-id=<uuid> --role=CUSTOMER --secret='<secret>'")
		os.Exit(2)
	}

	token, claims, err := cli.GenerateUserToken(*secret, *userID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println("TOKEN:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("CLAIMS:")
	fmt.Printf("  sub:  %s\n", claims.Subject)
	fmt.Printf("  role: %s\n", claims.Role)
	fmt.Printf("  iat:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	fmt.Printf("  exp:  %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
}
