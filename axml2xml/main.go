package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/avast/axml"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

type options struct {
	isApk   bool
	entry   string
	verbose bool
}

func newRootCmd(stdin io.Reader, log *logrus.Logger) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "axml2xml INPUT",
		Short: "Decode Android binary XML to text",
		Long: "Decode a compiled Android binary XML file (AndroidManifest.xml, layouts) to text.\n" +
			"INPUT is a file path, an .apk (decodes its AndroidManifest.xml) or - for stdin.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			return run(cmd.OutOrStdout(), stdin, log, args[0], opts)
		},
	}

	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %s", errUsage, err.Error())
	})

	cmd.Flags().BoolVarP(&opts.isApk, "apk", "a", false, "The input file is an apk")
	cmd.Flags().StringVarP(&opts.entry, "entry", "e", axml.ManifestEntry, "Binary XML entry to decode from the apk")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log skipped and tolerated chunks")
	return cmd
}

func run(out io.Writer, stdin io.Reader, log *logrus.Logger, input string, opts options) error {
	dec := axml.Decoder{Log: log.WithField("input", input)}

	if strings.HasSuffix(input, ".apk") {
		opts.isApk = true
	}

	var res string
	var err error
	switch {
	case input == "-":
		var data []byte
		if data, err = io.ReadAll(stdin); err != nil {
			return err
		}
		res, err = dec.Decode(data)
	case opts.isApk:
		res, err = dec.DecodeApk(input, opts.entry)
	default:
		var data []byte
		if data, err = os.ReadFile(input); err != nil {
			return err
		}
		res, err = dec.Decode(data)
	}

	if err != nil {
		return err
	}

	_, err = io.WriteString(out, res)
	return err
}

func newLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	return log
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	log := newLogger(stderr)

	cmd := newRootCmd(stdin, log)
	// cobra falls back to os.Args on nil
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprint(stderr, cmd.UsageString())
		return exitUsage
	default:
		log.WithError(err).Error("decoding failed")
		return exitError
	}
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
