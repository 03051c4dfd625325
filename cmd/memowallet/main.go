// memowallet is the command line wallet: it manages the local encrypted
// keystore, logs in to the handshake backend and submits calls either
// through the sponsor relayer or directly to a chain node.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

var version = "dev"

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"import", "encrypt a secret phrase into the keystore", runImport},
	{"accounts", "list keystore accounts", runAccounts},
	{"use", "select the current account", runUse},
	{"remove", "delete an account from the keystore", runRemove},
	{"login", "create a session for the current account", runLogin},
	{"status", "show the current session", runStatus},
	{"refresh", "refresh the current session", runRefresh},
	{"forward", "relay a call through the sponsor", runForward},
	{"submit", "sign and submit a call with the local key", runSubmit},
	{"history", "list locally submitted transactions", runHistory},
	{"balance", "show the free balance of the current account", runBalance},
	{"logout", "clear the current session", runLogout},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("memowallet", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", os.Getenv("MEMOWALLET_CONFIG"), "path to a YAML config file")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.BoolP("version", "v", false, "print version")
	flagSet.SetInterspersed(false)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if v, _ := flagSet.GetBool("version"); v {
		fmt.Println("memowallet", version)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return errors.New("missing command")
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		return fmt.Errorf("unknown command %q", args[0])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd.run(ctx, a, args[1:])
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "memowallet %s: wallet sessions, gasless forwarding and direct submission.\n\n", version)
	fmt.Fprintf(os.Stderr, "Usage:\n  memowallet [flags] <command> [command flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
