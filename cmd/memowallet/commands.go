package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/layer-3/memowallet/adapters/chain"
	"github.com/layer-3/memowallet/adapters/relay"
	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/service"
	"github.com/spf13/pflag"
)

func parseFlags(name string, args []string, define func(*pflag.FlagSet)) (*pflag.FlagSet, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs, nil
}

func runImport(ctx context.Context, a *app, args []string) error {
	var passwordFile, secretFile string
	if _, err := parseFlags("import", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&passwordFile, "password-file", "", "read the keystore password from a file")
		fs.StringVar(&secretFile, "secret-file", "", "read the secret phrase from a file")
	}); err != nil {
		return err
	}

	secret, err := readSecret("Secret phrase: ", secretFile)
	if err != nil {
		return err
	}
	password, err := readSecret("New password: ", passwordFile)
	if err != nil {
		return err
	}
	if passwordFile == "" {
		confirm, err := readSecret("Repeat password: ", "")
		if err != nil {
			return err
		}
		if confirm != password {
			return errors.New("passwords do not match")
		}
	}

	entry, err := a.keystore.Import(ctx, password, strings.TrimSpace(secret))
	if err != nil {
		return err
	}
	fmt.Println(entry.Address)
	return nil
}

func runAccounts(ctx context.Context, a *app, _ []string) error {
	entries, err := a.keystore.LoadAll(ctx)
	if err != nil {
		return err
	}
	current, err := a.keystore.CurrentAddress(ctx)
	if err != nil && !errors.Is(err, core.ErrNoCurrentAccount) {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		marker := " "
		if e.Address == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", marker, e.Address, e.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runUse(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: memowallet use <address>")
	}
	return a.keystore.SetCurrentAddress(ctx, args[0])
}

func runRemove(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: memowallet remove <address>")
	}
	return a.keystore.Remove(ctx, args[0])
}

// unlock decrypts the current account and arms the handshake signer
func (a *app) unlock(ctx context.Context, passwordFile string) (string, error) {
	address, err := a.keystore.CurrentAddress(ctx)
	if err != nil {
		return "", err
	}
	password, err := readSecret(fmt.Sprintf("Password for %s: ", address), passwordFile)
	if err != nil {
		return "", err
	}
	signer, err := a.keystore.Unlock(ctx, password)
	if err != nil {
		return "", err
	}
	a.signer.set(signer)
	return address, nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	var passwordFile string
	if _, err := parseFlags("login", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&passwordFile, "password-file", "", "read the keystore password from a file")
	}); err != nil {
		return err
	}

	var address string
	var err error
	if a.cfg.AllowDevSession {
		// a mock session does not need the key
		address, err = a.keystore.CurrentAddress(ctx)
		if err == nil {
			if _, unlockErr := a.unlock(ctx, passwordFile); unlockErr != nil {
				a.logger.Warn("keystore not unlocked, backend handshake will fail", "error", unlockErr)
			}
		}
	} else {
		address, err = a.unlock(ctx, passwordFile)
	}
	if err != nil {
		return err
	}

	a.sessions.Init(ctx)
	sess, err := a.sessions.CreateSession(ctx, address)
	if err != nil {
		return err
	}
	printSession(sess)
	return nil
}

func runStatus(ctx context.Context, a *app, _ []string) error {
	sess := a.sessions.Init(ctx)
	if sess == nil {
		fmt.Println("no active session")
		return nil
	}
	printSession(sess)
	if a.sessions.ShouldRefresh() {
		fmt.Println("refresh:  due, run memowallet refresh")
	}
	return nil
}

func runRefresh(ctx context.Context, a *app, args []string) error {
	var passwordFile string
	if _, err := parseFlags("refresh", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&passwordFile, "password-file", "", "read the keystore password from a file")
	}); err != nil {
		return err
	}

	prev := a.sessions.Init(ctx)
	if prev == nil {
		return core.ErrNoSession
	}
	if !prev.Mock {
		if _, err := a.unlock(ctx, passwordFile); err != nil {
			return err
		}
	}
	sess, err := a.sessions.RefreshSession(ctx)
	if err != nil {
		return err
	}
	printSession(sess)
	return nil
}

func parseCall(section, method, rawArgs string) (core.Call, error) {
	call := core.Call{Section: section, Method: method}
	if rawArgs == "" {
		call.Args = []any{}
		return call, nil
	}
	if err := json.Unmarshal([]byte(rawArgs), &call.Args); err != nil {
		return call, &core.ValidationError{Field: "args", Reason: "must be JSON: " + err.Error()}
	}
	return call, nil
}

func runForward(ctx context.Context, a *app, args []string) error {
	var ns, section, method, rawArgs string
	var validFor time.Duration
	var dryRun bool
	if _, err := parseFlags("forward", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&ns, "ns", "", "forward namespace: "+strings.Join(service.Namespaces(), ", "))
		fs.StringVar(&section, "section", "", "call section")
		fs.StringVar(&method, "method", "", "call method")
		fs.StringVar(&rawArgs, "args", "", "call arguments as a JSON array")
		fs.DurationVar(&validFor, "valid-for", 10*time.Minute, "how long the relayer may submit the request")
		fs.BoolVar(&dryRun, "dry-run", false, "print the request instead of relaying it")
	}); err != nil {
		return err
	}

	call, err := parseCall(section, method, rawArgs)
	if err != nil {
		return err
	}
	validTill := time.Now().Add(validFor).Unix()

	sess := a.sessions.Init(ctx)
	if sess == nil {
		return core.ErrNoSession
	}

	if dryRun {
		tx, err := service.BuildForwardRequest(core.ForwardRequest{
			NS:        ns,
			SessionID: sess.ID,
			Owner:     sess.Address,
			Call:      call,
			ValidTill: validTill,
		})
		if err != nil {
			return err
		}
		fmt.Println(service.Pretty(tx))
		return nil
	}

	relayer := relay.NewHTTPRelayer(relay.Config{
		Endpoint:          a.cfg.SponsorAPI,
		RequestsPerSecond: a.cfg.RelayRPS,
		Burst:             a.cfg.RelayBurst,
	})
	sender := service.NewRelaySender(a.sessions, a.store, relayer, a.logger)
	receipt, err := sender.Send(ctx, ns, call, validTill)
	if err != nil {
		return err
	}
	fmt.Println(service.Pretty(receipt))
	return nil
}

// dialChain connects to the configured node
func (a *app) dialChain(ctx context.Context) (*chain.RPCClient, error) {
	client, err := chain.Dial(ctx, a.cfg.NodeURL, a.cfg.DialTimeout)
	if err != nil {
		return nil, err
	}
	return chain.NewRPCClient(client, a.cfg.TokenDecimals, a.cfg.TokenSymbol, a.logger), nil
}

func runSubmit(ctx context.Context, a *app, args []string) error {
	var section, method, rawArgs, passwordFile string
	if _, err := parseFlags("submit", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&section, "section", "", "call section")
		fs.StringVar(&method, "method", "", "call method")
		fs.StringVar(&rawArgs, "args", "", "call arguments as a JSON array")
		fs.StringVar(&passwordFile, "password-file", "", "read the keystore password from a file")
	}); err != nil {
		return err
	}

	call, err := parseCall(section, method, rawArgs)
	if err != nil {
		return err
	}
	if a.sessions.Init(ctx) == nil {
		return core.ErrNoSession
	}
	password, err := readSecret("Password: ", passwordFile)
	if err != nil {
		return err
	}

	client, err := a.dialChain(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	submitter := service.NewDirectSubmitter(a.sessions, a.keystore, client, a.history, a.logger)
	hash, err := submitter.Submit(ctx, call, password)
	if err != nil {
		var dispatch *core.DispatchError
		if errors.As(err, &dispatch) {
			return fmt.Errorf("call failed on chain: %w", err)
		}
		return err
	}
	fmt.Println(hash)
	return nil
}

func runHistory(ctx context.Context, a *app, _ []string) error {
	records, err := a.history.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s.%s\t%s\t%s\n", r.Timestamp.Format(time.RFC3339), r.Section, r.Method, r.From, r.Hash)
	}
	return w.Flush()
}

func runBalance(ctx context.Context, a *app, args []string) error {
	address := ""
	if len(args) > 0 {
		address = args[0]
	} else {
		current, err := a.keystore.CurrentAddress(ctx)
		if err != nil {
			return err
		}
		address = current
	}

	client, err := a.dialChain(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	balance, err := client.FreeBalance(ctx, address)
	if err != nil {
		return err
	}
	fmt.Println(client.FormatBalance(balance))
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	if sess := a.sessions.Init(ctx); sess != nil && !sess.Mock {
		if err := a.handshaker.Revoke(ctx, sess.ID); err != nil {
			a.logger.Warn("backend logout failed, clearing local session anyway", "error", err)
		}
	}
	a.sessions.ClearSession(ctx)
	fmt.Println("logged out")
	return nil
}

func printSession(sess *core.Session) {
	fmt.Printf("address:  %s\n", sess.Address)
	fmt.Printf("session:  %s\n", abbreviate(sess.ID))
	fmt.Printf("expires:  %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
	if sess.Mock {
		fmt.Println("mode:     development (mock session)")
	}
	if len(sess.Allowances) > 0 {
		fmt.Printf("allows:   %s\n", sess.Allowances)
	}
}

func abbreviate(id string) string {
	if len(id) <= 24 {
		return id
	}
	return id[:12] + "..." + id[len(id)-8:]
}
