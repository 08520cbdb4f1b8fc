package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/report"
	"github.com/rustyeddy/papertrade/server"
	"github.com/rustyeddy/papertrade/sim"
)

func newServeCmd(rc *RootConfig) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rc, func(a *app) error {
				cfg := server.Config{
					Addr:         a.cfg.Server.Addr,
					Logger:       a.logger,
					ReadTimeout:  a.cfg.Server.ReadTimeout,
					WriteTimeout: a.cfg.Server.WriteTimeout,
				}
				if addr != "" {
					cfg.Addr = addr
				}
				return server.New(cfg, a.engine, a.accounts, a.db).Run(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func newRegisterCmd(rc *RootConfig) *cobra.Command {
	var password, confirm string

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account",
		Long: `Create an account funded with account.initial_cash.

Without --password the password and its confirmation are read from
the first two lines of stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, confirm, err = readPasswords(cmd.InOrStdin()); err != nil {
					return err
				}
			} else if confirm == "" {
				return errors.New("--confirm is required with --password")
			}

			return withApp(cmd.Context(), rc, func(a *app) error {
				u, err := a.accounts.Register(cmd.Context(), args[0], password, confirm)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s with %s\n", u.Username, market.FormatUSD(u.Cash))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password")
	cmd.Flags().StringVar(&confirm, "confirm", "", "Password confirmation")
	return cmd
}

func readPasswords(r io.Reader) (string, string, error) {
	s := bufio.NewScanner(r)
	var lines []string
	for len(lines) < 2 && s.Scan() {
		lines = append(lines, strings.TrimRight(s.Text(), "\r"))
	}
	if err := s.Err(); err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	for len(lines) < 2 {
		lines = append(lines, "")
	}
	return lines[0], lines[1], nil
}

func newQuoteCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <symbol>",
		Short: "Look up a stock's current price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rc, func(a *app) error {
				q, err := a.engine.Quote(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "A share of %s (%s) costs %s.\n", q.Name, q.Symbol, market.FormatUSD(q.Price))
				return nil
			})
		},
	}
}

func newTradeCmd(rc *RootConfig, side string) *cobra.Command {
	return &cobra.Command{
		Use:   side + " <username> <symbol> <shares>",
		Short: strings.ToUpper(side[:1]) + side[1:] + " shares at the current price",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			shares, err := sim.ParseShares(args[2])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), rc, func(a *app) error {
				ctx := cmd.Context()
				id, err := a.userID(ctx, args[0])
				if err != nil {
					return err
				}

				var r sim.Receipt
				if side == "buy" {
					r, err = a.engine.ExecuteBuy(ctx, id, args[1], shares)
				} else {
					r, err = a.engine.ExecuteSell(ctx, id, args[1], shares)
				}
				if err != nil {
					return err
				}

				md, err := report.ReceiptMarkdown(r)
				if err != nil {
					return err
				}
				return rc.print(cmd.OutOrStdout(), md)
			})
		},
	}
}

func newPortfolioCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio <username>",
		Short: "Show cash, holdings and total value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rc, func(a *app) error {
				id, err := a.userID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				view, err := a.engine.Portfolio(cmd.Context(), id)
				if err != nil {
					return err
				}
				md, err := report.PortfolioMarkdown(view)
				if err != nil {
					return err
				}
				return rc.print(cmd.OutOrStdout(), md)
			})
		},
	}
}

func newHistoryCmd(rc *RootConfig) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "history <username>",
		Short: "List every trade, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "table", "org", "csv":
			default:
				return fmt.Errorf("unknown format %q (want table, org or csv)", format)
			}
			return withApp(cmd.Context(), rc, func(a *app) error {
				id, err := a.userID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				entries, err := a.engine.History(cmd.Context(), id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				switch format {
				case "org":
					_, err = io.WriteString(out, journal.FormatEntriesOrg(entries))
					return err
				case "csv":
					return journal.WriteCSV(out, entries)
				}
				md, err := report.HistoryMarkdown(entries)
				if err != nil {
					return err
				}
				return rc.print(out, md)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table|org|csv")
	return cmd
}

func newTransactionCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "transaction <username> <id>",
		Short: "Show one trade as an Org entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rc, func(a *app) error {
				id, err := a.userID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				e, err := a.engine.Transaction(cmd.Context(), id, args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), journal.FormatEntryOrg(e))
				return err
			})
		},
	}
}

// print renders markdown in the configured style.
func (rc *RootConfig) print(w io.Writer, md string) error {
	style, err := report.ParseStyle(rc.Style)
	if err != nil {
		return err
	}
	out, err := report.Render(md, style, 0)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

