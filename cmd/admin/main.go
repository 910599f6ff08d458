// Command admin runs maintenance tasks against the accounts database.
//
//	admin [config flags] migrate
//	admin [config flags] create-user <username> <email>
//
// create-user prompts for the password without echoing it.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/dmitrijs2005/accounts/internal/server"
	"github.com/dmitrijs2005/accounts/internal/server/config"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accounts/internal/server/validation"
	"golang.org/x/term"
)

var commands = []string{"migrate", "create-user"}

var errUsage = errors.New("usage: admin [flags] migrate | create-user <username> <email>")

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// splitCommand returns the subcommand and its positional arguments.
func splitCommand(args []string) (string, []string, error) {
	for i, a := range args {
		for _, c := range commands {
			if a == c {
				return c, args[i+1:], nil
			}
		}
	}
	return "", nil, errUsage
}

func promptPassword(out io.Writer, in *os.File) (string, error) {
	fmt.Fprint(out, "Password: ")
	if term.IsTerminal(int(in.Fd())) {
		b, err := readPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func migrate(ctx context.Context, cfg *config.Config) error {
	db, err := server.OpenDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repomanager.NewPostgresRepositoryManager().RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	fmt.Println("migrations applied")
	return nil
}

func createUser(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	password, err := promptPassword(os.Stdout, os.Stdin)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	user, _, err := app.Accounts().Register(ctx, &validation.Input{
		Username: &args[0],
		Email:    &args[1],
		Password: &password,
	}, false)
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				fmt.Fprintf(os.Stderr, "%s: %s\n", f.Field, f.Message)
			}
		}
		return err
	}
	fmt.Printf("created user %s (%s)\n", user.Username, user.ID)
	return nil
}

func main() {
	ctx := context.Background()

	cmd, rest, err := splitCommand(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	switch cmd {
	case "migrate":
		err = migrate(ctx, cfg)
	case "create-user":
		err = createUser(ctx, cfg, rest)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}
