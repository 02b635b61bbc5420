package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/tirasundara/ledger-service/internal/config"
	"github.com/tirasundara/ledger-service/internal/domain"
	"github.com/tirasundara/ledger-service/internal/report"
	"github.com/tirasundara/ledger-service/internal/service"
)

const dateFormat = "2006-01-02"

// command is one ledger subcommand. flags registers its own flags and run
// executes it once the service is wired; dates are read in loc.
type command struct {
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, svc *service.AccountService, fs *pflag.FlagSet, loc *time.Location) (any, error)
	raw     bool
}

var commands = map[string]command{
	"open": {
		summary: "Open an account",
		flags: func(fs *pflag.FlagSet) {
			fs.String("name", "", "Account holder name")
			fs.String("password", "", "Account password")
			fs.String("overdraft-limit", "0", "Overdraft limit")
			fs.String("overdraft-tax", "0", "Daily overdraft tax rate (0..1)")
			fs.String("opening-date", "", "Opening date (YYYY-MM-DD), defaults to now")
			fs.String("deposit", "0", "Initial deposit")
		},
		run: runOpen,
	},
	"login": {
		summary: "Check an account id and password",
		flags:   accountFlags(true),
		run:     runLogin,
	},
	"balance": {
		summary: "Show the current balance",
		flags:   accountFlags(false),
		run:     runBalance,
	},
	"statement": {
		summary: "List transactions of a date window (at most 100 days)",
		flags: func(fs *pflag.FlagSet) {
			accountFlags(false)(fs)
			fs.String("start", "", "First day (YYYY-MM-DD)")
			fs.String("end", "", "Last day (YYYY-MM-DD), defaults to today")
			fs.String("format", "json", "Output format: json or csv")
			fs.String("output", "", "Path to output file (if empty, writes to stdout)")
		},
		run: runStatement,
		raw: true,
	},
	"withdraw": {
		summary: "Withdraw an amount",
		flags:   amountFlags(true),
		run:     runWithdraw,
	},
	"deposit": {
		summary: "Deposit an amount",
		flags:   amountFlags(false),
		run:     runDeposit,
	},
	"transfer": {
		summary: "Transfer an amount to another account",
		flags: func(fs *pflag.FlagSet) {
			amountFlags(true)(fs)
			fs.Int64("to", 0, "Destination account id")
		},
		run: runTransfer,
	},
	"types": {
		summary: "List transaction types",
		flags:   func(fs *pflag.FlagSet) {},
		run:     runTypes,
	},
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		exitWithError(fmt.Sprintf("Unknown command: %s", name))
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	config.RegisterFlags(fs)
	cmd.flags(fs)
	help, err := parseFlags(fs, os.Args[2:])
	if err != nil {
		exitWithError(err.Error())
	}
	if help {
		os.Exit(0)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		exitWithError(err.Error())
	}

	logger := cfg.NewLogger(os.Stderr)

	svc, closer, err := newAccountService(cfg, logger)
	if err != nil {
		exitWithError(fmt.Sprintf("Failed to start ledger: %v", err))
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := cmd.run(ctx, svc, fs, cfg.Location())
	if err != nil {
		closer.Close()
		exitWithDomainError(err)
	}

	if cmd.raw {
		return
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		exitWithError(fmt.Sprintf("Failed to format output: %v", err))
	}
	fmt.Println(string(output))
}

func accountFlags(withPassword bool) func(fs *pflag.FlagSet) {
	return func(fs *pflag.FlagSet) {
		fs.Int64("account", 0, "Account id")
		if withPassword {
			fs.String("password", "", "Account password")
		}
	}
}

func amountFlags(withPassword bool) func(fs *pflag.FlagSet) {
	return func(fs *pflag.FlagSet) {
		accountFlags(withPassword)(fs)
		fs.String("amount", "", "Amount")
	}
}

func runOpen(ctx context.Context, svc *service.AccountService, fs *pflag.FlagSet, loc *time.Location) (any, error) {
	name, _ := fs.GetString("name")
	password, _ := fs.GetString("password")

	overdraftLimit, err := decimalFlag(fs, "overdraft-limit")
	if err != nil {
		return nil, err
	}
	overdraftTax, err := decimalFlag(fs, "overdraft-tax")
	if err != nil {
		return nil, err
	}
	deposit, err := decimalFlag(fs, "deposit")
	if err != nil {
		return nil, err
	}

	openingDate := time.Now().In(loc)
	if raw, _ := fs.GetString("opening-date"); raw != "" {
		if openingDate, err = parseDate(raw, loc); err != nil {
			return nil, fmt.Errorf("invalid opening date format: %w", err)
		}
	}

	account, err := svc.OpenAccount(ctx, name, overdraftLimit, overdraftTax, password, openingDate, deposit)
	if err != nil {
		return nil, err
	}
	return accountView(account), nil
}

func runLogin(ctx context.Context, svc *service.AccountService, fs *pflag.FlagSet, loc *time.Location) (any, error) {
	id, _ := fs.GetInt64("account")
	password, _ := fs.GetString("password")

	account, err := svc.Authorize(ctx, id, password)
	if err != nil {
		return nil, err
	}
	return accountView(account), nil
}

func runBalance(ctx context.Context, svc *service.AccountService, fs *pflag.FlagSet, loc *time.Location) (any, error) {
	id, _ := fs.GetInt64("account")

	balance, err := svc.GetBalance(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"account": id, "balance": balance}, nil
}

func runStatement(ctx context.Context, svc *service.AccountService, fs *pflag.FlagSet, loc *time.Location) (any, error) {
	id, _ := fs.GetInt64("account")

	rawStart, _ := fs.GetString("start")
	if rawStart == "" {
		return nil, errors.New("start date is required")
	}
	start, err := parseDate(rawStart, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid start date format: %w", err)
	}

	var end *time.Time
	if rawEnd, _ := fs.GetString("end"); rawEnd != "" {
		parsed, err := parseDate(rawEnd, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid end date format: %w", err)
		}
		end = &parsed
	}

	var formatter report.OutputFormatter
	switch format, _ := fs.GetString("format"); format {
	case "json":
		formatter = report.NewJSONFormatter(true)
	case "csv":
		formatter = report.NewCSVFormatter("")
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	txns, err := svc.GetStatement(ctx, id, start, end)
	if err != nil {
		return nil, err
	}

	output, err := formatter.Format(txns)
	if err != nil {
		return nil, fmt.Errorf("failed to format output: %w", err)
	}

	outputFile, _ := fs.GetString("output")
	if outputFile == "" {
		fmt.Println(string(output))
		return nil, nil
	}

	// If no extension is provided, add the formatter's default extension
	if !strings.Contains(outputFile, ".") {
		outputFile = fmt.Sprintf("%s.%s", outputFile, formatter.FileExtension())
	}
	if err := os.WriteFile(outputFile, output, 0644); err != nil {
		return nil, fmt.Errorf("failed to write output file: %w", err)
	}
	return nil, nil
}

func runWithdraw(ctx context.Context, svc *service.AccountService, fs *pflag.FlagSet, loc *time.Location) (any, error) {
	id, _ := fs.GetInt64("account")
	password, _ := fs.GetString("password")
	amount, err := decimalFlag(fs, "amount")
	if err != nil {
		return nil, err
	}

	balance, err := svc.Withdraw(ctx, id, amount, password)
	if err != nil {
		return nil, err
	}
	return map[string]any{"account": id, "balance": balance}, nil
}

func runDeposit(ctx context.Context, svc *service.AccountService, fs *pflag.FlagSet, loc *time.Location) (any, error) {
	id, _ := fs.GetInt64("account")
	amount, err := decimalFlag(fs, "amount")
	if err != nil {
		return nil, err
	}

	balance, err := svc.Deposit(ctx, id, amount)
	if err != nil {
		return nil, err
	}
	return map[string]any{"account": id, "balance": balance}, nil
}

func runTransfer(ctx context.Context, svc *service.AccountService, fs *pflag.FlagSet, loc *time.Location) (any, error) {
	id, _ := fs.GetInt64("account")
	to, _ := fs.GetInt64("to")
	password, _ := fs.GetString("password")
	amount, err := decimalFlag(fs, "amount")
	if err != nil {
		return nil, err
	}

	return svc.Transfer(ctx, id, amount, password, to)
}

func runTypes(ctx context.Context, svc *service.AccountService, fs *pflag.FlagSet, loc *time.Location) (any, error) {
	var types []map[string]any
	for _, t := range domain.TransactionTypes() {
		types = append(types, map[string]any{"code": t.Code(), "name": t.Name()})
	}
	return types, nil
}

// parseFlags parses args into fs. A help request is reported as help, not as
// an error; pflag has already printed the usage by then.
func parseFlags(fs *pflag.FlagSet, args []string) (help bool, err error) {
	err = fs.Parse(args)
	if errors.Is(err, pflag.ErrHelp) {
		return true, nil
	}
	return false, err
}

// parseDate reads a YYYY-MM-DD day as midnight of that day in loc
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateFormat, raw, loc)
}

func decimalFlag(fs *pflag.FlagSet, name string) (decimal.Decimal, error) {
	raw, _ := fs.GetString(name)
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return value, nil
}

func accountView(account *domain.Account) map[string]any {
	return map[string]any{
		"id":              account.ID(),
		"name":            account.Name(),
		"opening_date":    account.OpeningDate().Format(dateFormat),
		"overdraft_limit": account.OverdraftLimit(),
		"overdraft_tax":   account.OverdraftTax(),
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: ledger <command> [flags]\n\nCommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'ledger <command> -h' for the flags of a command.\n")
}

func exitWithDomainError(err error) {
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		exitWithError(err.Error())
	}

	fmt.Fprintf(os.Stderr, "Error: %s\n", domainErr.Message)
	for _, v := range domainErr.Errors {
		fmt.Fprintf(os.Stderr, "  - %s\n", v.Error())
	}
	os.Exit(1)
}

func exitWithError(message string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Run with -h flag for usage information.\n")
	os.Exit(1)
}
