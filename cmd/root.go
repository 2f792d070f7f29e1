package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tcptap/tcptap/artifact"
	"github.com/tcptap/tcptap/capture"
	"github.com/tcptap/tcptap/cfg"
	"github.com/tcptap/tcptap/printer"
	"github.com/tcptap/tcptap/util"
	"github.com/tcptap/tcptap/version"
)

const defaultDebugLevel = 1

var (
	bytesPerFlowFlag  int64
	consoleOnlyFlag   bool
	debugLevelFlag    int
	maxFDsFlag        int
	interfaceFlag     string
	noPromiscFlag     bool
	traceFileFlag     string
	stripNonPrintFlag bool
	verboseFlag       bool
	printTimeFlag     bool
	printDatetimeFlag bool
	stripEOLFlag      bool
	jsonLogsFlag      bool
)

var rootCmd = &cobra.Command{
	Use:           "tcptap [flags] [expression]",
	Short:         "Capture TCP streams into per-flow files.",
	Long: "tcptap watches a network interface or a recorded trace and writes the payload\n" +
		"of every TCP flow it sees into a file named after the flow's endpoints.\n" +
		"The optional trailing expression is a tcpdump-style BPF filter.",
	Version:       version.CLIDisplayString(),
	SilenceErrors: true, // We print our own errors in the Execute function
	// Don't print usage after error, we only print help if we cannot
	// parse flags. See Execute below.
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonLogsFlag {
			printer.SwitchToJSON()
		}

		if verboseFlag {
			viper.Set("debug-level", 10)
		} else if debugLevelFlag < 0 {
			viper.Set("debug-level", defaultDebugLevel)
			printer.V(1).Debugf("warning: -d flag with negative debug level ignored\n")
		}

		bytesPerFlow := bytesPerFlowFlag
		if bytesPerFlow < 0 {
			printer.V(1).Debugf("warning: invalid value %d used with -b ignored\n", bytesPerFlow)
			bytesPerFlow = 0
		} else if bytesPerFlow > 0 {
			printer.V(10).Debugf("capturing max of %d bytes per flow\n", bytesPerFlow)
		}

		maxFDs := maxFDsFlag
		if maxFDs != 0 && maxFDs < artifact.ReservedDescriptors+2 {
			printer.V(1).Debugf("warning: -f flag must be used with argument >= %d\n", artifact.ReservedDescriptors+2)
			maxFDs = 0
		}

		stripNonPrint := stripNonPrintFlag
		if consoleOnlyFlag {
			printer.V(10).Debugf("printing packets to console only\n")
			stripNonPrint = true
		}
		if stripNonPrint {
			printer.V(10).Debugf("converting non-printable characters to '.'\n")
		}

		if traceFileFlag != "" && interfaceFlag != "" {
			return errors.New("-i and -r may not be combined")
		}

		printer.V(10).Debugf("tcptap version %s\n", version.CLIDisplayString())

		captureArgs := capture.Args{
			Interface:     viper.GetString("interface"),
			TraceFile:     traceFileFlag,
			Filter:        strings.Join(args, " "),
			BytesPerFlow:  uint64(bytesPerFlow),
			MaxDesiredFDs: maxFDs,
			ConsoleOnly:   consoleOnlyFlag,
			NoPromisc:     noPromiscFlag,
			StripNonPrint: stripNonPrint,
			StripEOL:      stripEOLFlag,
			PrintTime:     printTimeFlag,
			PrintDateTime: printDatetimeFlag,
		}
		if traceFileFlag != "" {
			captureArgs.Interface = ""
		}

		if err := capture.Run(captureArgs); err != nil {
			var exitErr util.ExitError
			if errors.As(err, &exitErr) {
				return err
			}
			return util.ExitError{Class: util.SetupFailure, Err: err}
		}
		return nil
	},
}

func Execute() {
	if cmd, err := rootCmd.ExecuteC(); err != nil {
		// Errors cobra produces itself are flag-parse problems.
		exitErr := util.ExitError{Class: util.UsageFailure, Err: err}
		errors.As(err, &exitErr)

		if exitErr.Class == util.UsageFailure {
			// Print usage for CLI usage errors (e.g. a bad flag) but not
			// for capture errors.
			cmd.Println(cmd.UsageString())
		}

		printer.Stderr.Errorf("%s\n", err)
		os.Exit(exitErr.ExitCode())
	}
}

func init() {
	printer.Init(filepath.Base(os.Args[0]))

	rootCmd.Flags().Int64VarP(
		&bytesPerFlowFlag,
		"bytes-per-flow",
		"b",
		0,
		"Max number of bytes per flow to save (0 = unlimited).")

	rootCmd.Flags().BoolVarP(
		&consoleOnlyFlag,
		"console",
		"c",
		false,
		"Console print only (don't create files); implies -s.")

	rootCmd.Flags().IntVarP(
		&debugLevelFlag,
		"debug-level",
		"d",
		defaultDebugLevel,
		"Debug verbosity level.")

	rootCmd.Flags().IntVarP(
		&maxFDsFlag,
		"max-fds",
		"f",
		0,
		"Maximum number of file descriptors to use.")

	rootCmd.Flags().StringVarP(
		&interfaceFlag,
		"interface",
		"i",
		"",
		"Network interface on which to listen.")

	rootCmd.Flags().BoolVarP(
		&noPromiscFlag,
		"no-promiscuous",
		"p",
		false,
		"Don't put the interface in promiscuous mode.")

	rootCmd.Flags().StringVarP(
		&traceFileFlag,
		"read",
		"r",
		"",
		"Read packets from a recorded trace file instead of an interface.")

	rootCmd.Flags().BoolVarP(
		&stripNonPrintFlag,
		"strip-nonprintable",
		"s",
		false,
		"Strip non-printable characters (change to '.').")

	rootCmd.Flags().BoolVarP(
		&verboseFlag,
		"verbose",
		"v",
		false,
		"Verbose operation, equivalent to -d 10.")

	rootCmd.Flags().BoolVarP(
		&printTimeFlag,
		"print-time",
		"t",
		false,
		"Console mode: prefix each line with the packet time.")

	rootCmd.Flags().BoolVarP(
		&printDatetimeFlag,
		"print-datetime",
		"x",
		false,
		"Console mode: prefix each line with the packet date and time.")

	rootCmd.Flags().BoolVarP(
		&stripEOLFlag,
		"strip-eol",
		"o",
		false,
		"Console mode: convert end-of-line characters to '.'.")

	rootCmd.Flags().BoolVar(
		&jsonLogsFlag,
		"json-logs",
		false,
		"Emit log messages as JSON for log collectors.")
	rootCmd.Flags().MarkHidden("json-logs")

	viper.BindPFlag("debug-level", rootCmd.Flags().Lookup("debug-level"))
	viper.BindPFlag("interface", rootCmd.Flags().Lookup("interface"))

	cfg.LoadDefaults()
}
