package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/conorfennell/apkgbridge/internal/apkg"
	"github.com/conorfennell/apkgbridge/internal/config"
	"github.com/conorfennell/apkgbridge/internal/domain"
	"github.com/conorfennell/apkgbridge/internal/filestore"
	"github.com/conorfennell/apkgbridge/internal/library"
	"github.com/conorfennell/apkgbridge/internal/logging"
	"github.com/conorfennell/apkgbridge/internal/storage"
)

const usage = `Usage: apkgbridge <command> [flags] [args]

Commands:
  load-md [dir...]   Load markdown decks into the database
  decks              List stored decks
  export             Export decks to an .apkg file
  import [file...]   Import .apkg files as new decks
  delete             Delete decks, their cards and their media
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "load-md":
		err = runLoadMarkdown(args)
	case "decks":
		err = runDecks(args)
	case "export":
		err = runExport(args)
	case "import":
		err = runImport(args)
	case "delete":
		err = runDelete(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("Command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

// app holds what every command needs once flags are parsed.
type app struct {
	cfg    *config.Config
	db     *storage.DB
	lib    *library.Library
	logger *slog.Logger
}

func setup(flags *pflag.FlagSet, args []string) (*app, error) {
	config.RegisterFlags(flags)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Database opened", "path", cfg.DBPath)

	media, err := filestore.New(cfg.MediaDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	if cfg.LibraryDir == "" {
		cfg.LibraryDir = "library"
		if cfg.LibraryURL != "" {
			if cfg.LibraryDir, err = library.LocalPath("repos", cfg.LibraryURL); err != nil {
				db.Close()
				return nil, err
			}
		}
	}

	opts := apkg.Options{WorkDir: cfg.WorkDir, OutputDir: cfg.OutputDir}
	return &app{cfg: cfg, db: db, lib: library.New(db, media, opts, logger), logger: logger}, nil
}

func printErrors(errs []error) {
	if len(errs) == 0 {
		return
	}
	fmt.Println("\nErrors:")
	for _, e := range errs {
		fmt.Printf("- %s\n", e)
	}
}

func runLoadMarkdown(args []string) error {
	flags := pflag.NewFlagSet("load-md", pflag.ContinueOnError)
	a, err := setup(flags, args)
	if err != nil {
		return err
	}
	defer a.db.Close()

	dirs := flags.Args()
	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	var total library.Report
	for _, dir := range dirs {
		report, err := a.lib.LoadMarkdown(dir)
		if err != nil {
			return err
		}
		total.Decks += report.Decks
		total.Cards += report.Cards
		total.Skipped += report.Skipped
		total.Errors = append(total.Errors, report.Errors...)
	}

	fmt.Printf("Loaded %d new decks, %d new cards, skipped %d known cards, %d errors.\n",
		total.Decks, total.Cards, total.Skipped, len(total.Errors))
	printErrors(total.Errors)
	return nil
}

func runDecks(args []string) error {
	flags := pflag.NewFlagSet("decks", pflag.ContinueOnError)
	a, err := setup(flags, args)
	if err != nil {
		return err
	}
	defer a.db.Close()

	decks, err := a.db.GetAllDecks()
	if err != nil {
		return err
	}
	ids := make([]int64, len(decks))
	for i, d := range decks {
		ids[i] = d.ID
	}
	cards, err := a.db.CardsByDeckIDs(ids)
	if err != nil {
		return err
	}
	counts := make(map[int64]int, len(decks))
	for _, c := range cards {
		counts[c.DeckID]++
	}

	for _, d := range decks {
		fmt.Printf("%d\t%s\t%d cards\n", d.ID, d.Name, counts[d.ID])
	}
	return nil
}

func runExport(args []string) error {
	flags := pflag.NewFlagSet("export", pflag.ContinueOnError)
	names := flags.StringSlice("deck", nil, "Name of a deck to export (repeatable)")
	ids := flags.Int64Slice("id", nil, "ID of a deck to export (repeatable)")
	all := flags.Bool("all", false, "Export every stored deck")
	commit := flags.Bool("commit", false, "Commit the exported file to the deck library")
	a, err := setup(flags, args)
	if err != nil {
		return err
	}
	defer a.db.Close()

	decks, err := a.selectDecks(*names, *ids, *all)
	if err != nil {
		return err
	}

	var path string
	if *commit {
		path, err = a.lib.Publish(decks, a.cfg.LibraryURL, a.cfg.LibraryDir)
	} else {
		path, err = a.lib.Export(decks)
	}
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runImport(args []string) error {
	flags := pflag.NewFlagSet("import", pflag.ContinueOnError)
	fromLibrary := flags.Bool("library", false, "Import every new container in the deck library")
	a, err := setup(flags, args)
	if err != nil {
		return err
	}
	defer a.db.Close()

	paths := flags.Args()
	if len(paths) == 0 && !*fromLibrary {
		return errors.New("no .apkg files given")
	}

	var failed int
	for _, path := range paths {
		models, skipped, err := a.lib.ImportFile(path)
		if err != nil {
			a.logger.Error("Import failed", "file", path, "error", err)
			failed++
			continue
		}
		if skipped {
			fmt.Printf("%s\talready imported\n", path)
			continue
		}
		printModels(models)
	}

	if *fromLibrary {
		report, err := a.lib.Sync(a.cfg.LibraryURL, a.cfg.LibraryDir)
		if err != nil {
			return err
		}
		fmt.Printf("Library: %d new decks, %d cards, %d containers already imported, %d errors.\n",
			report.Decks, report.Cards, report.Skipped, len(report.Errors))
		printErrors(report.Errors)
		failed += len(report.Errors)
	}

	if failed > 0 {
		return fmt.Errorf("%d imports failed", failed)
	}
	return nil
}

func runDelete(args []string) error {
	flags := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	names := flags.StringSlice("deck", nil, "Name of a deck to delete (repeatable)")
	ids := flags.Int64Slice("id", nil, "ID of a deck to delete (repeatable)")
	a, err := setup(flags, args)
	if err != nil {
		return err
	}
	defer a.db.Close()

	decks, err := a.selectDecks(*names, *ids, false)
	if err != nil {
		return err
	}
	if len(decks) == 0 {
		return domain.ErrNoDeckSelected
	}
	for _, d := range decks {
		if err := a.lib.DeleteDeck(d); err != nil {
			return err
		}
		fmt.Printf("%d\t%s\tdeleted\n", d.ID, d.Name)
	}
	return nil
}

// selectDecks resolves --deck names and --id values, or every deck when all
// is set. Unknown names are an error; unknown ids are skipped.
func (a *app) selectDecks(names []string, ids []int64, all bool) ([]domain.Deck, error) {
	if all {
		return a.db.GetAllDecks()
	}
	selected := append([]int64(nil), ids...)
	for _, name := range names {
		d, err := a.db.FindDeckByName(name)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, fmt.Errorf("deck %q not found", name)
		}
		selected = append(selected, d.ID)
	}
	return a.db.GetDecksByIDs(selected)
}

func printModels(models []domain.DeckModel) {
	for _, m := range models {
		fmt.Printf("%d\t%s\t%d cards\n", m.Deck.ID, m.Deck.Name, len(m.Cards))
	}
}
