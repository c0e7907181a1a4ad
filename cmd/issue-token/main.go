// Command issue-token mints student or proctor tokens against the configured
// JWT secret. Tokens are normally issued by the login service; this is for
// local testing and for running an exam without it.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/service"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Issue Exam Session Token ===")

	fmt.Print("Token type (student/proctor): ")
	kind, _ := reader.ReadString('\n')
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != string(service.TokenTypeStudent) && kind != string(service.TokenTypeProctor) {
		fmt.Println("Error: Token type must be student or proctor")
		os.Exit(1)
	}

	fmt.Print("Enter User ID: ")
	idStr, _ := reader.ReadString('\n')
	userID, err := strconv.Atoi(strings.TrimSpace(idStr))
	if err != nil || userID <= 0 {
		fmt.Println("Error: Invalid User ID")
		os.Exit(1)
	}

	// Secret: the env value unless the operator overrides it.
	fmt.Print("JWT secret (leave empty to use JWT_SECRET): ")
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading secret")
		os.Exit(1)
	}
	if s := strings.TrimSpace(string(secret)); s != "" {
		cfg.JWTSecret = s
	}

	var token string
	switch service.TokenType(kind) {
	case service.TokenTypeStudent:
		fmt.Print("Enter Class ID (optional): ")
		classStr, _ := reader.ReadString('\n')
		classID, _ := strconv.Atoi(strings.TrimSpace(classStr))

		// Student tokens are bound to the single-device session key in Redis.
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		token, err = service.NewAuthService(cfg, rdb).GenerateStudentToken(ctx, userID, classID)
		if err != nil {
			log.Fatal().Err(err).Int("student_id", userID).Msg("Failed to issue student token")
		}

	case service.TokenTypeProctor:
		fmt.Printf("Permissions (comma separated, default %s): ", service.PermissionMonitorExams)
		permStr, _ := reader.ReadString('\n')
		perms := splitPermissions(permStr)
		if len(perms) == 0 {
			perms = []string{service.PermissionMonitorExams}
		}

		token, err = service.NewAuthService(cfg, nil).GenerateProctorToken(userID, perms)
		if err != nil {
			log.Fatal().Err(err).Int("proctor_id", userID).Msg("Failed to issue proctor token")
		}
	}

	fmt.Printf("\nToken (valid for %s):\n%s\n", cfg.JWTExpiry, token)
}

func splitPermissions(raw string) []string {
	var perms []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	return perms
}
