// Command pharmanet runs supply-chain operations against a configured ledger.
// Configuration is read from PHARMANET_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"pharmanet/internal/config"
	"pharmanet/internal/core"
	"pharmanet/internal/platform"
	"pharmanet/internal/report"
	"pharmanet/pkg/domain"
)

var (
	exitFunc   = os.Exit
	loadConfig = config.Load
	openOpts   []platform.Option
)

type command struct {
	usage string
	// operation names the access-policy entry used to pick the default org.
	operation string
	run       func(ctx context.Context, p *platform.Platform, caller string, fs *flag.FlagSet, args []string) (any, error)
}

var commands = map[string]command{
	"register-company": {
		usage:     "-crn CRN -name NAME -location LOC -role ROLE",
		operation: core.OpRegisterCompany,
		run: func(ctx context.Context, p *platform.Platform, caller string, fs *flag.FlagSet, args []string) (any, error) {
			var in core.RegisterCompanyInput
			fs.StringVar(&in.CRN, "crn", "", "company registration number")
			fs.StringVar(&in.Name, "name", "", "company name")
			fs.StringVar(&in.Location, "location", "", "company location")
			fs.StringVar(&in.Role, "role", "", "Manufacturer, Distributor, Retailer or Transporter")
			if err := fs.Parse(args); err != nil {
				return nil, err
			}
			company, _, err := p.Service.RegisterCompany(ctx, caller, in)
			return company, err
		},
	},
	"mint-drug": {
		usage:     "-name NAME -serial SERIAL -mfg DATE -exp DATE -manufacturer CRN",
		operation: core.OpMintDrug,
		run: func(ctx context.Context, p *platform.Platform, caller string, fs *flag.FlagSet, args []string) (any, error) {
			var in core.MintDrugInput
			fs.StringVar(&in.Name, "name", "", "drug name")
			fs.StringVar(&in.SerialNo, "serial", "", "serial number")
			fs.StringVar(&in.ManufacturingDate, "mfg", "", "manufacturing date")
			fs.StringVar(&in.ExpiryDate, "exp", "", "expiry date")
			fs.StringVar(&in.ManufacturerCRN, "manufacturer", "", "manufacturer CRN")
			if err := fs.Parse(args); err != nil {
				return nil, err
			}
			drug, _, err := p.Service.MintDrug(ctx, caller, in)
			return drug, err
		},
	},
	"create-po": {
		usage:     "-buyer CRN -seller CRN -drug NAME -quantity N",
		operation: core.OpCreatePurchaseOrder,
		run: func(ctx context.Context, p *platform.Platform, caller string, fs *flag.FlagSet, args []string) (any, error) {
			var in core.CreatePurchaseOrderInput
			fs.StringVar(&in.BuyerCRN, "buyer", "", "buyer CRN")
			fs.StringVar(&in.SellerCRN, "seller", "", "seller CRN")
			fs.StringVar(&in.DrugName, "drug", "", "drug name")
			fs.IntVar(&in.Quantity, "quantity", 0, "number of units")
			if err := fs.Parse(args); err != nil {
				return nil, err
			}
			po, _, err := p.Service.CreatePurchaseOrder(ctx, caller, in)
			return po, err
		},
	},
	"create-shipment": {
		usage:     "-buyer CRN -drug NAME -transporter CRN SERIAL...",
		operation: core.OpCreateShipment,
		run: func(ctx context.Context, p *platform.Platform, caller string, fs *flag.FlagSet, args []string) (any, error) {
			var in core.CreateShipmentInput
			fs.StringVar(&in.BuyerCRN, "buyer", "", "buyer CRN")
			fs.StringVar(&in.DrugName, "drug", "", "drug name")
			fs.StringVar(&in.TransporterCRN, "transporter", "", "transporter CRN")
			if err := fs.Parse(args); err != nil {
				return nil, err
			}
			in.AssetSerials = fs.Args()
			shipment, _, err := p.Service.CreateShipment(ctx, caller, in)
			return shipment, err
		},
	},
	"deliver-shipment": {
		usage:     "-buyer CRN -drug NAME -transporter CRN",
		operation: core.OpDeliverShipment,
		run: func(ctx context.Context, p *platform.Platform, caller string, fs *flag.FlagSet, args []string) (any, error) {
			var in core.DeliverShipmentInput
			fs.StringVar(&in.BuyerCRN, "buyer", "", "buyer CRN")
			fs.StringVar(&in.DrugName, "drug", "", "drug name")
			fs.StringVar(&in.TransporterCRN, "transporter", "", "transporter CRN")
			if err := fs.Parse(args); err != nil {
				return nil, err
			}
			shipment, _, err := p.Service.DeliverShipment(ctx, caller, in)
			return shipment, err
		},
	},
	"retail-drug": {
		usage:     "-name NAME -serial SERIAL -retailer CRN -consumer ID",
		operation: core.OpRetailDrug,
		run: func(ctx context.Context, p *platform.Platform, caller string, fs *flag.FlagSet, args []string) (any, error) {
			var in core.RetailDrugInput
			fs.StringVar(&in.Name, "name", "", "drug name")
			fs.StringVar(&in.SerialNo, "serial", "", "serial number")
			fs.StringVar(&in.RetailerCRN, "retailer", "", "retailer CRN")
			fs.StringVar(&in.ConsumerID, "consumer", "", "consumer identifier")
			if err := fs.Parse(args); err != nil {
				return nil, err
			}
			drug, _, err := p.Service.RetailDrug(ctx, caller, in)
			return drug, err
		},
	},
	"drug-state": {
		usage: "-name NAME -serial SERIAL",
		run: func(ctx context.Context, p *platform.Platform, _ string, fs *flag.FlagSet, args []string) (any, error) {
			name, serial := drugFlags(fs)
			if err := fs.Parse(args); err != nil {
				return nil, err
			}
			return p.Service.DrugState(ctx, *name, *serial)
		},
	},
	"history": {
		usage: "-name NAME -serial SERIAL",
		run: func(ctx context.Context, p *platform.Platform, _ string, fs *flag.FlagSet, args []string) (any, error) {
			name, serial := drugFlags(fs)
			if err := fs.Parse(args); err != nil {
				return nil, err
			}
			return p.Service.DrugHistory(ctx, *name, *serial)
		},
	},
	"export-history": {
		usage: "-name NAME -serial SERIAL [-format json|xlsx]",
		run: func(ctx context.Context, p *platform.Platform, _ string, fs *flag.FlagSet, args []string) (any, error) {
			name, serial := drugFlags(fs)
			format := fs.String("format", string(report.FormatJSON), "json or xlsx")
			if err := fs.Parse(args); err != nil {
				return nil, err
			}
			return p.Reports.ExportHistory(ctx, *name, *serial, report.Format(*format))
		},
	},
}

func drugFlags(fs *flag.FlagSet) (*string, *string) {
	return fs.String("name", "", "drug name"), fs.String("serial", "", "serial number")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pharmanet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	org := fs.String("org", "", "caller MSP ID; defaults to the organization allowed to run the command")
	fs.Usage = func() { usage(fs, stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		usage(fs, stderr)
		return 2
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		usage(fs, stderr)
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if cfg.Log.Output == "stdout" {
		// stdout carries command results.
		cfg.Log.Output = "stderr"
	}
	p, err := platform.Open(ctx, cfg, openOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "open: %v\n", err)
		return 1
	}
	defer func() {
		if err := p.Close(); err != nil {
			fmt.Fprintf(stderr, "close: %v\n", err)
		}
	}()

	caller := *org
	if caller == "" {
		caller = defaultCaller(cfg, cmd.operation)
	}
	sub := flag.NewFlagSet(name, flag.ContinueOnError)
	sub.SetOutput(stderr)
	out, err := cmd.run(ctx, p, caller, sub, fs.Args()[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return exitCode(err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "write result: %v\n", err)
		return 1
	}
	return 0
}

func defaultCaller(cfg *config.Config, operation string) string {
	if operation == core.OpMintDrug {
		return cfg.Access.ManufacturerOrg
	}
	return cfg.Access.SupplyChainOrg
}

// exitCode separates rejected requests (3) from infrastructure failures (1).
func exitCode(err error) int {
	if domain.KindOf(err) != "" {
		return 3
	}
	return 1
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "usage: pharmanet [-org MSP] <command> [flags]")
	fs.PrintDefaults()
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "commands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-17s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(w, "configuration: "+strings.Join([]string{
		config.DefaultPrefix + "_LEDGER_DRIVER",
		config.DefaultPrefix + "_SQLITE_PATH",
		config.DefaultPrefix + "_BLOB_DRIVER",
	}, ", ")+" and related variables")
}
