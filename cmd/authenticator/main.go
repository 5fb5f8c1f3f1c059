package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/anchorscm/anchor/internal/authenticator"
)

const usage = `anchor-authenticator manages a local vault of TOTP accounts.

Usage:
  authenticator [-vault path] add -issuer NAME -label NAME -secret BASE32
  authenticator [-vault path] add -uri otpauth://totp/...
  authenticator [-vault path] list
  authenticator [-vault path] codes
  authenticator [-vault path] remove -id ID
`

func main() {
	vaultPath := flag.String("vault", defaultVaultPath(), "path to the vault file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	if dir := filepath.Dir(*vaultPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			fatalf("create vault directory: %v", err)
		}
	}

	vault, err := authenticator.Open(*vaultPath)
	if err != nil {
		fatalf("open vault: %v", err)
	}
	defer vault.Close()

	switch cmd := flag.Arg(0); cmd {
	case "add":
		runAdd(vault, flag.Args()[1:])
	case "list":
		runList(vault)
	case "codes":
		runCodes(vault)
	case "remove":
		runRemove(vault, flag.Args()[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

func runAdd(vault *authenticator.Vault, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	uri := fs.String("uri", "", "otpauth://totp provisioning URI")
	issuer := fs.String("issuer", "", "issuer name")
	label := fs.String("label", "", "account label")
	secret := fs.String("secret", "", "base32 shared secret")
	_ = fs.Parse(args)

	var acct authenticator.Account
	var err error
	switch {
	case *uri != "":
		acct, err = vault.AddFromURI(*uri)
	case *secret != "":
		acct, err = vault.Add(*issuer, *label, *secret)
	default:
		fatalf("add needs either -uri or -secret")
	}
	if err != nil {
		fatalf("add account: %v", err)
	}

	fmt.Printf("added %s (%s / %s)\n", acct.ID, acct.Issuer, acct.Label)
}

func runList(vault *authenticator.Vault) {
	accounts, err := vault.List()
	if err != nil {
		fatalf("list accounts: %v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tISSUER\tLABEL\tADDED")
	for _, acct := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			acct.ID, acct.Issuer, acct.Label, acct.AddedAt.Format(time.DateOnly))
	}
	tw.Flush()
}

func runCodes(vault *authenticator.Vault) {
	codes, err := vault.Codes(time.Now())
	if err != nil {
		fatalf("generate codes: %v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ISSUER\tLABEL\tCODE\tEXPIRES")
	for _, c := range codes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%ds\n",
			c.Account.Issuer, c.Account.Label, c.Value, c.Remaining)
	}
	tw.Flush()
}

func runRemove(vault *authenticator.Vault, args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	id := fs.String("id", "", "account id to remove")
	_ = fs.Parse(args)

	if *id == "" {
		fatalf("remove needs -id")
	}
	if err := vault.Remove(*id); err != nil {
		fatalf("remove account: %v", err)
	}
	fmt.Printf("removed %s\n", *id)
}

func defaultVaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "authenticator.db"
	}
	return filepath.Join(home, ".anchor", "authenticator.db")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
