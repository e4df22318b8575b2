// Package main - savectl
// Operator tool for save slots: zstd archive export/import and inspection of
// a single player against the audit ledger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MRamiBalles/Basecaster/internal/engine"
	"github.com/MRamiBalles/Basecaster/internal/infra/storage"
	"github.com/MRamiBalles/Basecaster/internal/platform/config"
	"github.com/MRamiBalles/Basecaster/internal/savegame"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: savectl <command> [flags]

commands:
  export   write every save slot to a zstd-compressed JSONL archive
  import   restore slots from an archive
  inspect  print one player's slot and audit ledger`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("BASECASTER_CONFIG"), "YAML config file")
	dbPath := fs.String("db", "", "SQLite file (defaults to the configured path)")
	prefix := fs.String("prefix", savegame.SlotPrefix, "key prefix to export")
	out := fs.String("out", "", "archive to write (export)")
	in := fs.String("in", "", "archive to read (import)")
	player := fs.String("player", "", "player id (inspect)")
	limit := fs.Int("limit", 10000, "audit events to fold (inspect)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dbPath == "" {
		*dbPath = cfg.Storage.SQLitePath
	}
	db, err := storage.InitSQLite(*dbPath)
	if err != nil {
		log.Fatalf("open %s: %v", *dbPath, err)
	}
	defer db.Close()

	ctx := context.Background()
	switch cmd {
	case "export":
		if *out == "" {
			*out = filepath.Join(cfg.Storage.ArchiveDir, "slots-"+time.Now().UTC().Format("20060102-150405")+".jsonl.zst")
		}
		err = exportSlots(ctx, db, *prefix, *out)
	case "import":
		if *in == "" {
			log.Fatal("import needs -in")
		}
		err = importSlots(ctx, db, *in)
	case "inspect":
		if *player == "" {
			log.Fatal("inspect needs -player")
		}
		err = inspect(ctx, db, cfg, *player, *limit)
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func exportSlots(ctx context.Context, db *sqlx.DB, prefix, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := savegame.ExportArchive(ctx, storage.NewSQLiteKV(db), prefix, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Printf("exported %d records to %s\n", n, path)
	return nil
}

func importSlots(ctx context.Context, db *sqlx.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := savegame.ImportArchive(ctx, storage.NewSQLiteKV(db), f)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d records from %s\n", n, path)
	return nil
}

func inspect(ctx context.Context, db *sqlx.DB, cfg config.Config, playerID string, limit int) error {
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	slots := savegame.NewSlots(storage.NewSQLiteKV(db), catalog, cfg.Economy, nil)
	p, found, err := slots.Load(ctx, playerID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no save slot for %s", playerID)
	}

	// a throwaway engine only to derive the view
	view := engine.NewEngine(playerID, p, catalog, cfg.Economy, nil, nil).ViewOf(p)
	ledger, err := storage.NewReconstructor(storage.NewSQLiteEventRepository(db)).RebuildLedger(ctx, playerID, limit)
	if err != nil {
		return err
	}

	report := map[string]any{
		"player_id":         playerID,
		"last_persisted_at": time.UnixMilli(p.LastPersistedAtMs).UTC().Format(time.RFC3339),
		"state":             view,
		"ledger":            ledger,
		"ledger_earned":     ledger.Earned(),
	}
	if ledger.Events < limit && ledger.Earned() != p.LifetimePoints {
		report["warning"] = fmt.Sprintf("ledger earned %d but slot lifetime is %d", ledger.Earned(), p.LifetimePoints)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
