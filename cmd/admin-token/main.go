package main

import (
	"fmt"
	"os"

	jwtpkg "smscode/backend/internal/auth/jwt"
	"smscode/backend/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: admin-token <subject>")
		os.Exit(1)
	}
	subject := os.Args[1]

	// 加载配置，密钥与服务端一致才能通过校验
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	manager := jwtpkg.NewManager(cfg.Admin.JWTSecret, cfg.Admin.Issuer, cfg.Admin.TokenExpiry)
	token, err := manager.GenerateAdminToken(subject)
	if err != nil {
		fmt.Printf("Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Admin token generated\n")
	fmt.Printf("  Subject:   %s\n", subject)
	fmt.Printf("  ExpiresAt: %s\n", token.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("\n%s %s\n", token.TokenType, token.AccessToken)
}
