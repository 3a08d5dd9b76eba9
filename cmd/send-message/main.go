// Command send-message delivers a text to one user's private chat through the bot.
// It reads the same environment as the analyst and is used to check private delivery.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/DevRickLin/feishu-chat-analyst/internal/conf"
	"github.com/DevRickLin/feishu-chat-analyst/internal/infra/feishu"
)

func main() {
	envFile := pflag.String("env-file", conf.DefaultEnvFile, "dotenv file to load before reading the environment")
	timeout := pflag.Duration("timeout", 15*time.Second, "send timeout")
	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: send-message [flags] <open_id> <message>")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() < 2 {
		pflag.Usage()
		os.Exit(2)
	}
	openID := pflag.Arg(0)
	text := strings.Join(pflag.Args()[1:], " ")

	cfg, err := conf.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := conf.NewLogger(cfg.Log)

	client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := client.SendPrivate(ctx, openID, text); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Message sent successfully!")
}
