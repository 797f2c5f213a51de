package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"codemail/backend/internal/auth"
	"codemail/backend/internal/config"
	sqlstore "codemail/backend/internal/storage/sql"
)

// 创建管理员或重置其密码。只对数据库存储有意义，内存存储随进程退出丢失。
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: create-admin <username> <password>")
		os.Exit(1)
	}

	username := os.Args[1]
	password := os.Args[2]

	if err := auth.ValidatePassword(password); err != nil {
		fmt.Printf("Invalid password: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.Type == "" {
		fmt.Println("TEMPMAIL_DATABASE_TYPE is not set. Admin users can only be persisted to a database.")
		os.Exit(1)
	}

	store, err := sqlstore.NewStore(cfg.Database.Type, cfg.Database.DSN, sqlstore.Options{
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := auth.NewService(store, nil).SetPassword(ctx, username, password); err != nil {
		fmt.Printf("Failed to save admin user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Admin user saved successfully!\n")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Database: %s\n", cfg.Database.Type)
}
