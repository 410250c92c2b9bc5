package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/awnumar/memguard"
	"github.com/rs/zerolog"

	"github.com/yamnikov-oleg/rooster/internal/audit"
	"github.com/yamnikov-oleg/rooster/internal/auth"
	"github.com/yamnikov-oleg/rooster/internal/config"
	cr "github.com/yamnikov-oleg/rooster/internal/crypto"
	"github.com/yamnikov-oleg/rooster/internal/logging"
	"github.com/yamnikov-oleg/rooster/internal/passgen"
	"github.com/yamnikov-oleg/rooster/internal/platform"
	"github.com/yamnikov-oleg/rooster/internal/storage"
	"github.com/yamnikov-oleg/rooster/internal/sync"
	"github.com/yamnikov-oleg/rooster/internal/vault"
)

type app struct {
	cfg    *config.Config
	policy vault.Policy
	log    zerolog.Logger
	audit  *audit.Log
}

type command struct {
	name  string
	usage string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"init", "init", cmdInit},
	{"add", "add <app> <username> [--generate [--length N --alnum]]", cmdAdd},
	{"get", "get <query> [--show]", cmdGet},
	{"list", "list", cmdList},
	{"delete", "delete <app>", cmdDelete},
	{"rename", "rename <app> <new-name>", cmdRename},
	{"transfer", "transfer <app> <new-username>", cmdTransfer},
	{"change", "change <app>", cmdChange},
	{"generate", "generate <app> <username> [--length N --alnum]", cmdGenerate},
	{"regenerate", "regenerate <app> [--length N --alnum]", cmdRegenerate},
	{"export", "export", cmdExport},
	{"set-master-password", "set-master-password", cmdSetMaster},
	{"sync", "sync [--pull | --push]", cmdSync},
}

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load("")
	dieIf(err)
	policy, err := cfg.Policy()
	dieIf(err)
	log := logging.New(cfg.LogLevel, os.Stderr)
	a := &app{cfg: cfg, policy: policy, log: log, audit: audit.New(audit.WithLogger(log))}

	if err := platform.DisableCoreDumps(); err != nil {
		a.log.Warn().Err(err).Msg("could not disable core dumps")
	}

	name := os.Args[1]
	for _, c := range commands {
		if c.name == name {
			dieIf(c.run(a, context.Background(), os.Args[2:]))
			return
		}
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "vaultctl commands:")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintln(os.Stderr, "  "+c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nThe vault lives at $%s (default ~/.passwords.rooster).\n", config.EnvFile)
}

func dieIf(err error) {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return
	}
	if vault.KindOf(err) == vault.KindIntegrityFailure {
		fmt.Fprintln(os.Stderr, "error: incorrect master password or damaged vault file")
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	memguard.Purge()
	os.Exit(1)
}

// parse parses flags and checks the positional argument count.
func parse(fs *flag.FlagSet, args []string, positional int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	rest := fs.Args()
	if len(rest) != positional {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", fs.Name(), positional, len(rest))
	}
	return rest, nil
}

func (a *app) newVault() *vault.Vault {
	return vault.New(a.cfg.VaultPath, vault.WithLogger(a.log), vault.WithPolicy(a.policy), vault.WithAudit(a.audit))
}

func masterPrompt() platform.TerminalPassphrase {
	return platform.TerminalPassphrase{Prompt: "Master password: ", AllowPipe: true}
}

func (a *app) open(ctx context.Context) (*vault.Vault, error) {
	v := a.newVault()
	if err := v.OpenWithRetry(ctx, masterPrompt(), vault.DefaultUnlockAttempts); err != nil {
		return nil, err
	}
	if v.NeedsRehash() {
		a.log.Warn().Str("kdf", v.KDF().Algorithm.String()).
			Msg("vault uses weaker key derivation than configured; run set-master-password to upgrade")
	}
	return v, nil
}

// mutate opens the vault, applies fn and saves.
func (a *app) mutate(ctx context.Context, fn func(v *vault.Vault) error) error {
	v, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer v.Close()
	if err := fn(v); err != nil {
		return err
	}
	return v.Save(ctx)
}

func (a *app) newMaster(ctx context.Context) ([]byte, error) {
	src := platform.TerminalPassphrase{Prompt: "New master password: ", Confirm: true, AllowPipe: true}
	pw, err := src.Passphrase(ctx)
	if err != nil {
		return nil, err
	}
	p := auth.DefaultPolicy
	p.MinScore = a.cfg.MinPassphraseScore
	if err := auth.ValidatePassphrase(p, pw, "rooster", filepath.Base(a.cfg.VaultPath)); err != nil {
		cr.Zero(pw)
		return nil, err
	}
	return pw, nil
}

func cmdInit(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	pw, err := a.newMaster(ctx)
	if err != nil {
		return err
	}
	defer cr.Zero(pw)

	v := a.newVault()
	if err := v.Create(ctx, pw); err != nil {
		return err
	}
	defer v.Close()
	fmt.Println("Vault created:", v.Path())
	return nil
}

type genFlags struct {
	length *int
	alnum  *bool
}

func addGenFlags(fs *flag.FlagSet) genFlags {
	return genFlags{
		length: fs.Int("length", passgen.DefaultLength, "generated password length"),
		alnum:  fs.Bool("alnum", false, "only use a-z, A-Z and 0-9"),
	}
}

func (g genFlags) generate() ([]byte, error) {
	return passgen.Generate(passgen.Options{Length: *g.length, Alnum: *g.alnum})
}

func readEntryPassword(ctx context.Context) ([]byte, error) {
	src := platform.TerminalPassphrase{Prompt: "Password: ", AllowPipe: true}
	pw, err := src.Passphrase(ctx)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, errors.New("password is empty")
	}
	return pw, nil
}

func cmdAdd(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	gen := fs.Bool("generate", false, "generate the password")
	g := addGenFlags(fs)
	rest, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	return a.mutate(ctx, func(v *vault.Vault) error {
		var pw []byte
		if *gen {
			pw, err = g.generate()
		} else {
			pw, err = readEntryPassword(ctx)
		}
		if err != nil {
			return err
		}
		defer cr.Zero(pw)
		if err := v.Put(vault.Entry{App: rest[0], Username: rest[1], Password: pw}, false); err != nil {
			return err
		}
		fmt.Printf("Added %s.\n", rest[0])
		return nil
	})
}

func cmdGenerate(a *app, ctx context.Context, args []string) error {
	return cmdAdd(a, ctx, append([]string{"--generate"}, args...))
}

func cmdGet(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	show := fs.Bool("show", false, "print the password")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	v, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer v.Close()

	found, err := v.Search(rest[0])
	if err != nil {
		return err
	}
	defer func() {
		for i := range found {
			found[i].Wipe()
		}
	}()
	if len(found) == 0 {
		return fmt.Errorf("%w: no entry matches %q", vault.ErrNotFound, rest[0])
	}
	e := found[0]
	fmt.Printf("%s\t%s\n", e.App, e.Username)
	if *show {
		os.Stdout.Write(e.Password)
		fmt.Println()
	}
	if len(found) > 1 {
		others := make([]string, 0, len(found)-1)
		for _, o := range found[1:] {
			others = append(others, o.App)
		}
		fmt.Fprintf(os.Stderr, "also matched: %s\n", strings.Join(others, ", "))
	}
	return nil
}

func cmdList(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	v, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer v.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "APP\tUSERNAME\tUPDATED")
	for e := range v.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.App, e.Username, e.UpdatedAt.Local().Format(time.DateTime))
		e.Wipe()
	}
	return tw.Flush()
}

func cmdDelete(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	return a.mutate(ctx, func(v *vault.Vault) error {
		if err := v.Delete(rest[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s.\n", rest[0])
		return nil
	})
}

func cmdRename(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rename", flag.ContinueOnError)
	rest, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	return a.mutate(ctx, func(v *vault.Vault) error {
		return v.Rename(rest[0], rest[1])
	})
}

func cmdTransfer(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
	rest, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	return a.mutate(ctx, func(v *vault.Vault) error {
		return v.Update(rest[0], vault.Changes{Username: &rest[1]})
	})
}

func cmdChange(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("change", flag.ContinueOnError)
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	return a.mutate(ctx, func(v *vault.Vault) error {
		if _, err := v.Get(rest[0]); err != nil {
			return err
		}
		pw, err := readEntryPassword(ctx)
		if err != nil {
			return err
		}
		defer cr.Zero(pw)
		return v.Update(rest[0], vault.Changes{Password: pw})
	})
}

func cmdRegenerate(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("regenerate", flag.ContinueOnError)
	g := addGenFlags(fs)
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	return a.mutate(ctx, func(v *vault.Vault) error {
		pw, err := g.generate()
		if err != nil {
			return err
		}
		defer cr.Zero(pw)
		if err := v.Update(rest[0], vault.Changes{Password: pw}); err != nil {
			return err
		}
		fmt.Printf("Regenerated the password for %s.\n", rest[0])
		return nil
	})
}

func cmdExport(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	v, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer v.Close()
	return v.Export(os.Stdout)
}

func cmdSetMaster(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-master-password", flag.ContinueOnError)
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	v, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer v.Close()

	pw, err := a.newMaster(ctx)
	if err != nil {
		return err
	}
	defer cr.Zero(pw)
	if err := v.ChangePassword(ctx, pw); err != nil {
		return err
	}
	fmt.Println("Master password changed.")
	return nil
}

func cmdSync(a *app, ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	pullOnly := fs.Bool("pull", false, "only merge the remote vault into the local one")
	pushOnly := fs.Bool("push", false, "only upload the local vault")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	if *pullOnly && *pushOnly {
		return errors.New("sync: --pull and --push are exclusive")
	}

	remote, err := storage.New(ctx, a.cfg.Remote)
	if err != nil {
		return err
	}
	defer remote.Close(ctx)

	v, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer v.Close()

	c := sync.New(v, remote,
		sync.WithLogger(a.log),
		sync.WithAudit(a.audit),
		sync.WithPassphraseSource(platform.TerminalPassphrase{Prompt: "Remote vault password: ", AllowPipe: true}),
	)
	if *pushOnly {
		if err := c.Push(ctx); err != nil {
			return err
		}
		fmt.Println("Uploaded.")
		return nil
	}

	var res sync.Result
	if *pullOnly {
		res, err = c.Pull(ctx)
	} else {
		res, err = c.Sync(ctx)
	}
	if err != nil {
		return err
	}
	defer res.Wipe()
	printSync(res)
	return nil
}

func printSync(res sync.Result) {
	fmt.Printf("Sync %s: %d added, %d updated, %d conflicts.\n",
		res.RunID, len(res.Added), len(res.Updated), len(res.Conflicts))
	for _, c := range res.Conflicts {
		fmt.Printf("  conflict %s: kept version from %s, discarded version from %s\n",
			c.Name,
			c.Kept.UpdatedAt.Local().Format(time.DateTime),
			c.Discarded.UpdatedAt.Local().Format(time.DateTime))
	}
}
