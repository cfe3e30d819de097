package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/Astemirdum/library-borrowing/library/config"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// token issues a bearer token signed with JWT_SECRET for local testing.
// The lifetime defaults to JWT_TTL.
func main() {
	_ = godotenv.Load() //nolint:errcheck
	var authCfg config.Auth
	if err := envconfig.Process("", &authCfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	userID := flag.Int64("user", 1, "user id")
	email := flag.String("email", "admin@library.dev", "user email")
	staff := flag.Bool("staff", false, "issue a staff token")
	ttl := flag.Duration("ttl", authCfg.TokenTTL, "token lifetime")
	outputJSON := flag.Bool("json", false, "output as JSON")
	flag.Parse()

	caller := auth.Caller{ID: *userID, Email: *email, IsStaff: *staff}
	token, err := auth.NewToken([]byte(authCfg.JWTSecret), caller, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "auth.NewToken: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   int(ttl.Seconds()),
			"user_id":      caller.ID,
			"email":        caller.Email,
			"is_staff":     caller.IsStaff,
		})
		return
	}
	fmt.Println(token)
	fmt.Println()
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/v1/borrowings/\n", token)
}
