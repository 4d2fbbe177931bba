package main

import (
	"os"

	"github.com/alitto/pond/v2"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"www.velocidex.com/golang/olevba"
	"www.velocidex.com/golang/olevba/scanner"
)

const VERSION = "0.2.0"

var (
	app   = kingpin.New("olevba", "Extract and analyze VBA macros from MS Office files.")
	files = app.Arg("file", "Files to analyze (wildcards are supported)").Required().Strings()

	triage      = app.Flag("triage", "Triage mode, one line of flags per file").Short('t').Bool()
	json_output = app.Flag("json", "Print all results as JSON").Short('j').Bool()

	recursive    = app.Flag("recursive", "Find files recursively in subdirectories").Short('r').Bool()
	zip_password = app.Flag("zip", "Open files as zip archives, using this password for encrypted members").Short('z').PlaceHolder("PASSWORD").String()
	zip_fname    = app.Flag("zipfname", "Only analyze zip members matching this glob").Short('f').Default("*").String()

	analysis_only   = app.Flag("analysis", "Display only the analysis, not the source code").Short('a').Bool()
	code_only       = app.Flag("code", "Display only the source code, not the analysis").Short('c').Bool()
	decode          = app.Flag("decode", "Display all the obfuscated strings with their decoded content").Bool()
	show_attributes = app.Flag("attr", "Display the attribute lines at the beginning of the code").Bool()
	reveal          = app.Flag("reveal", "Display the macro source code after replacing all the obfuscated strings").Bool()
	deobfuscate     = app.Flag("deobf", "Deobfuscate VBA expressions (slow)").Bool()

	rules_file  = app.Flag("rules", "YAML file with extra keyword groups").ExistingFile()
	threads     = app.Flag("threads", "Number of files to analyze in parallel").Default("4").Int()
	log_level   = app.Flag("loglevel", "Logging level").Short('l').Default("warning").Enum("debug", "info", "warning", "error", "fatal")
	profile_dir = app.Flag("profile", "Write a CPU profile into this directory").String()
)

// settings are the analysis options shared by all workers.
type settings struct {
	options         *olevba.Options
	include_decoded bool
	deobfuscate     bool
	reveal          bool
	analysis_only   bool
	code_only       bool
	show_attributes bool
}

func makeLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = os.Stderr
	logger.Formatter = &logrus.TextFormatter{DisableTimestamp: true}

	level, err := logrus.ParseLevel(*log_level)
	kingpin.FatalIfError(err, "Log level")
	logger.SetLevel(level)
	return logger
}

func makeSettings(logger *logrus.Logger) *settings {
	options := olevba.DefaultOptions()
	options.Logger = logger

	if *rules_file != "" {
		rules, err := scanner.LoadRulesFile(*rules_file)
		kingpin.FatalIfError(err, "Loading rules")
		options.Rules = rules
	}

	return &settings{
		options:         options,
		include_decoded: *decode,
		deobfuscate:     *deobfuscate || *reveal,
		reveal:          *reveal,
		analysis_only:   *analysis_only,
		code_only:       *code_only,
		show_attributes: *show_attributes,
	}
}

// analyzeAll runs one task per input. Reports are returned in input
// order.
func analyzeAll(inputs []*input, config *settings, workers int) []*fileReport {
	if workers < 1 {
		workers = 1
	}

	reports := make([]*fileReport, len(inputs))
	pool := pond.NewPool(workers)
	for idx, item := range inputs {
		idx, item := idx, item
		pool.Submit(func() {
			reports[idx] = analyzeInput(item, config)
		})
	}
	pool.StopAndWait()

	return reports
}

func doAnalyze() error {
	logger := makeLogger()
	config := makeSettings(logger)

	filenames, err := expandFiles(*files, *recursive, logger)
	if err != nil {
		return err
	}

	var inputs []*input
	if *zip_password != "" {
		inputs = zipInputs(filenames, *zip_password, *zip_fname, logger)
	} else {
		inputs = fileInputs(filenames)
	}

	reports := analyzeAll(inputs, config, *threads)

	switch {
	case *json_output:
		return printJSON(os.Stdout, reports, config)
	case *triage:
		printTriage(os.Stdout, reports)
	default:
		for _, report := range reports {
			printDetailed(os.Stdout, report, config)
		}
	}

	return nil
}

func main() {
	app.HelpFlag.Short('h')
	app.Version(VERSION)
	app.UsageTemplate(kingpin.CompactUsageTemplate).DefaultEnvars()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if *profile_dir != "" {
		defer profile.Start(profile.ProfilePath(*profile_dir)).Stop()
	}

	err := doAnalyze()
	kingpin.FatalIfError(err, "Analyzing")
}
