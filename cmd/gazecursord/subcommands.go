package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/eorua8801/restructured-cursor/internal/settings"
)

func printProfileUsage() {
	fmt.Printf("gazecursord profile v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  gazecursord profile export [-db PATH] [-name NAME] [-o FILE]")
	fmt.Println("  gazecursord profile import [-db PATH] FILE")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  export writes the stored settings as a TOML profile (stdout if -o is omitted).")
	fmt.Println("  import validates a TOML profile and saves it to the store. A running daemon")
	fmt.Println("  picks it up on restart, or live when the file is its watched profile.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -db string")
	fmt.Printf("        Settings database (default %q)\n", defaultDBPath)
	fmt.Println()
	fmt.Println("  -o string")
	fmt.Println("        Output file (export only)")
	fmt.Println()
	fmt.Println("  -name string")
	fmt.Println("        Profile name written to the file (export only)")
	fmt.Println()
}

// runProfileSubcommand handles "profile export|import".
func runProfileSubcommand(args []string) {
	if len(args) == 0 {
		printProfileUsage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet("profile "+args[0], flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath, "Settings database")
	out := fs.String("o", "", "Output file (export)")
	name := fs.String("name", "", "Profile name (export)")
	fs.Usage = printProfileUsage
	_ = fs.Parse(args[1:])

	var err error
	switch args[0] {
	case "export":
		err = exportProfile(*dbPath, *out, *name, os.Stdout)
	case "import":
		if fs.NArg() != 1 {
			printProfileUsage()
			os.Exit(2)
		}
		err = importProfile(*dbPath, fs.Arg(0))
	case "-help", "--help", "-h", "help":
		printProfileUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "error: unknown profile command %q\n", args[0])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func exportProfile(dbPath, out, name string, stdout io.Writer) error {
	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	us, found, err := store.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !found {
		us = settings.Default()
	}

	if out != "" {
		if err := settings.SaveProfile(ExpandPath(out), name, us); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "exported %s\n", out)
		return nil
	}

	if err := us.Validate(); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}
	return settings.WriteProfile(stdout, name, us)
}

func importProfile(dbPath, path string) error {
	us, name, err := settings.LoadProfile(ExpandPath(path))
	if err != nil {
		return err
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save(us); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if name != "" {
		fmt.Printf("imported profile %q (preset %s)\n", name, us.Preset)
	} else {
		fmt.Printf("imported %s (preset %s)\n", path, us.Preset)
	}
	return nil
}

// runCalibrationsSubcommand lists the calibration history.
func runCalibrationsSubcommand(args []string) {
	fs := flag.NewFlagSet("calibrations", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath, "Settings database")
	limit := fs.Int("n", 20, "Number of records to show")
	_ = fs.Parse(args)

	if err := listCalibrations(*dbPath, *limit, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func listCalibrations(dbPath string, limit int, w io.Writer) error {
	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Calibrations(limit)
	if err != nil {
		return fmt.Errorf("list calibrations: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACCEPTED\tOFFSET_X\tOFFSET_Y\tREASON\tSESSION")
	for _, r := range recs {
		reason := r.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%s\t%v\t%.1f\t%.1f\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Accepted, r.OffsetX, r.OffsetY, reason, shortID(r.SessionID))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
