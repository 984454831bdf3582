package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/noah-isme/learnify-api/internal/models"
	"github.com/noah-isme/learnify-api/pkg/database"
)

var (
	readPasswordFunc = term.ReadPassword     // mockable
	migrateFunc      = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type adminCreator interface {
	CreateAdmin(ctx context.Context, email, fullName, password string) (*models.User, error)
}

type commandLine struct {
	db     *sql.DB
	admins adminCreator
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]        - run goose migrations (up, down, status, up-to N, ...)")
	fmt.Fprintln(cli.out, "  createadmin -email E -name N  - create an admin account, the password is prompted")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return migrateFunc(ctx, cli.db, args[2], args[3:]...)
	case "createadmin":
		return cli.createAdmin(ctx, args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) createAdmin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("createadmin", flag.ContinueOnError)
	fs.SetOutput(cli.out)
	email := fs.String("email", "", "The admin's email. The password will be prompted next.")
	name := fs.String("name", "", "The admin's full name.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *name == "" {
		fs.Usage()
		return errHelp
	}

	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return errHelp
	}

	user, err := cli.admins.CreateAdmin(ctx, *email, *name, string(pwd))
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "admin %s created (%s)\n", user.Email, user.ID)
	return nil
}
