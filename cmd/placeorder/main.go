package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type options struct {
	configFile      string
	credentialsFile string

	segment   string
	symbol    string
	side      string
	product   string
	orderType string
	qty       int64
	price     string
	trigger   string
	tag       string

	yes     bool
	verbose bool
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr, buildLive))
}

// execute runs the command and returns the process exit code: 0 for a dry run or
// an accepted order, 1 for anything else.
func execute(args []string, stdout, stderr io.Writer, build builder) int {
	cmd := newRootCommand(stdout, stderr, build)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand(stdout, stderr io.Writer, build builder) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "placeorder",
		Short: "Place a single order after a TOTP login",
		Long: `Authenticates with TOTP login and MPIN validate, then submits one order.

Without --yes nothing is sent: the normalized order is printed and the command exits 0.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, stdout, stderr, build)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "Path to config file (default ./config.yaml if present)")
	f.StringVar(&opts.credentialsFile, "credentials", "", "Path to the credentials file (overrides credentials.file)")
	f.StringVar(&opts.segment, "segment", "", "Exchange segment, e.g. NSE, NFO, nse_cm")
	f.StringVar(&opts.symbol, "symbol", "", "Trading symbol, e.g. ITBEES-EQ")
	f.StringVar(&opts.side, "tt", "", "Transaction type: B or S")
	f.StringVar(&opts.product, "product", "", "Product code, e.g. MIS, CNC, NRML (default order.default_product)")
	f.StringVar(&opts.orderType, "order", "", "Order type: L, MKT, SL, SL-M")
	f.Int64Var(&opts.qty, "qty", 0, "Quantity")
	f.StringVar(&opts.price, "price", "", "Limit price, required for L and SL")
	f.StringVar(&opts.trigger, "trigger", "", "Trigger price for SL and SL-M")
	f.StringVar(&opts.tag, "tag", "", "Order tag, also the idempotency key (default ORDER_CLI_<timestamp>)")
	f.BoolVar(&opts.yes, "yes", false, "Actually place the order")
	f.BoolVar(&opts.verbose, "verbose", false, "Debug logging")

	_ = cmd.MarkFlagRequired("segment")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("tt")
	_ = cmd.MarkFlagRequired("qty")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}
