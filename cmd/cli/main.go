// cmd/cli/main.go is the operator tool: it inspects and edits chat settings,
// quota usage and roulette state without going through the chat.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/keshon/gremlin/internal/config"
	"github.com/keshon/gremlin/internal/logging"
	"github.com/keshon/gremlin/internal/quota"
	"github.com/keshon/gremlin/internal/roulette"
	"github.com/keshon/gremlin/internal/storage"
	"github.com/keshon/gremlin/internal/store"
	"github.com/spf13/pflag"
)

type env struct {
	cfg      *config.Config
	loc      *time.Location
	settings *storage.Storage
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{"chats", "list known chats", runChats},
	{"usage", "show today's quota usage: usage --chat ID", runUsage},
	{"set", "change a setting: set [--chat ID] KEY VALUE|reset (no --chat = app-wide)", runSet},
	{"activate", "enable the bot in a chat: activate --chat ID", runActivate(true)},
	{"deactivate", "disable the bot in a chat: deactivate --chat ID", runActivate(false)},
	{"reset-winner", "clear today's roulette winner: reset-winner --chat ID", runResetWinner},
	{"history", "show recent commands: history --chat ID [--limit N]", runHistory},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printHelp()
		return nil
	}
	var c *command
	for i := range commands {
		if commands[i].name == args[0] {
			c = &commands[i]
		}
	}
	if c == nil {
		printHelp()
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	settings, err := storage.New(cfg.StoragePath, logging.Nop())
	if err != nil {
		return err
	}
	defer settings.Close()

	return c.run(context.Background(), &env{cfg: cfg, loc: loc, settings: settings}, args[1:])
}

func printHelp() {
	fmt.Println("usage: cli <command> [flags]")
	fmt.Println()
	for _, c := range commands {
		fmt.Printf("  %-13s %s\n", c.name, c.usage)
	}
}

func chatFlags(name string, args []string) (*pflag.FlagSet, string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	chat := fs.StringP("chat", "c", "", "chat (channel) ID")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	return fs, *chat, nil
}

func requireChat(name string, args []string) (string, error) {
	_, chat, err := chatFlags(name, args)
	if err != nil {
		return "", err
	}
	if chat == "" {
		return "", errors.New("--chat is required")
	}
	return chat, nil
}

func runChats(ctx context.Context, e *env, _ []string) error {
	chats, err := e.settings.Chats(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tACTIVE\tTITLE")
	for _, c := range chats {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", c.ID, c.Kind, c.Active, c.Title)
	}
	return w.Flush()
}

func openBackend(ctx context.Context, cfg *config.Config) (quota.Backend, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is not set; in-memory quotas live only inside the bot process")
	}
	client, err := quota.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	return quota.NewRedisBackend(client), nil
}

func runUsage(ctx context.Context, e *env, args []string) error {
	chat, err := requireChat("usage", args)
	if err != nil {
		return err
	}
	backend, err := openBackend(ctx, e.cfg)
	if err != nil {
		return err
	}
	conf, err := e.settings.ChatConfig(ctx, chat)
	if err != nil {
		return err
	}
	ledger := quota.NewLedger(backend, e.loc, logging.Nop())
	limits := map[string]int{quota.PrefixLLM: conf.LLMDailyLimit, quota.PrefixSummary: conf.SummaryDailyLimit}
	for _, prefix := range []string{quota.PrefixLLM, quota.PrefixSummary} {
		n, err := ledger.Usage(ctx, chat, prefix)
		if err != nil {
			return err
		}
		limit := "unlimited"
		if limits[prefix] > 0 {
			limit = fmt.Sprint(limits[prefix])
		}
		fmt.Printf("%-8s %d / %s\n", prefix, n, limit)
	}
	return nil
}

func runSet(ctx context.Context, e *env, args []string) error {
	fs, chat, err := chatFlags("set", args)
	if err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return errors.New("usage: set [--chat ID] KEY VALUE|reset")
	}
	key := strings.ToLower(rest[0])
	known := append([]string(nil), config.ChatKeys...)
	sort.Strings(known)
	if i := sort.SearchStrings(known, key); i == len(known) || known[i] != key {
		return fmt.Errorf("unknown key %q (known: %s)", key, strings.Join(known, ", "))
	}
	value, err := config.ParseValue(strings.Join(rest[1:], " "))
	if err != nil {
		return err
	}
	if chat == "" {
		err = e.settings.SetAppSetting(key, value)
	} else {
		err = e.settings.SetChatSetting(chat, key, value)
	}
	if err != nil {
		return err
	}
	return e.settings.Flush()
}

func runActivate(active bool) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		chat, err := requireChat("activate", args)
		if err != nil {
			return err
		}
		if err := e.settings.SetChatSetting(chat, config.KeyIsActive, active); err != nil {
			return err
		}
		return e.settings.Flush()
	}
}

func runResetWinner(ctx context.Context, e *env, args []string) error {
	chat, err := requireChat("reset-winner", args)
	if err != nil {
		return err
	}
	db, err := store.Open(e.cfg.DatabasePath, logging.Nop())
	if err != nil {
		return err
	}
	defer db.Close()

	sched := roulette.NewScheduler(roulette.Deps{Store: db, Settings: e.settings, Location: e.loc, Logger: logging.Nop()})
	n, err := sched.ResetDailyWinner(ctx, chat)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d winner row(s)\n", n)
	return nil
}

func runHistory(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("history", pflag.ContinueOnError)
	chat := fs.StringP("chat", "c", "", "chat (channel) ID")
	limit := fs.IntP("limit", "n", 20, "number of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *chat == "" {
		return errors.New("--chat is required")
	}
	recs, err := e.settings.FetchCommandHistory(*chat)
	if err != nil {
		return err
	}
	if len(recs) > *limit {
		recs = recs[len(recs)-*limit:]
	}
	for _, r := range recs {
		fmt.Printf("%s  %-12s %s %s\n", r.Datetime.In(e.loc).Format(time.DateTime), r.Username, r.Command, r.Param)
	}
	return nil
}
