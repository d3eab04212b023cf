package main

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// admin-password prints an ADMIN_PASSWORD_HASH value for the .env file.
func main() {
	cfg := config.Load()

	fmt.Println("=== Admin Password Hash ===")

	fmt.Print("Enter Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		os.Exit(1)
	}
	if len(first) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		os.Exit(1)
	}

	fmt.Print("Repeat Password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		os.Exit(1)
	}
	if string(first) != string(second) {
		fmt.Println("Error: Passwords do not match")
		os.Exit(1)
	}

	hash, err := service.NewAuthService(cfg, nil).HashPassword(string(first))
	if err != nil {
		fmt.Printf("Error hashing password: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nADMIN_USERNAME=%s\nADMIN_PASSWORD_HASH='%s'\n", cfg.AdminUsername, hash)
}
