// Command catalog-check loads the rule catalog from the configured database
// and reports any inconsistency that would stop the API from serving it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
	"github.com/noah-isme/univ-lifecycle-api/internal/repository"
	"github.com/noah-isme/univ-lifecycle-api/internal/service"
	"github.com/noah-isme/univ-lifecycle-api/pkg/config"
	"github.com/noah-isme/univ-lifecycle-api/pkg/database"
)

type report struct {
	OK          bool   `json:"ok"`
	Statuses    int    `json:"statuses"`
	Transitions int    `json:"transitions"`
	Milestones  int    `json:"milestones"`
	Actions     int    `json:"actions"`
	Impacts     int    `json:"impacts"`
	Error       string `json:"error,omitempty"`
}

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(2)
	}
	defer db.Close()

	rep := check(ctx, repository.NewCatalogRepository(db, cfg.Lifecycle.StoreTimeout))
	if *asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(rep)
	} else if rep.OK {
		fmt.Printf("catalog ok: %d statuses, %d transitions, %d milestones, %d actions, %d impacts\n",
			rep.Statuses, rep.Transitions, rep.Milestones, rep.Actions, rep.Impacts)
	} else {
		fmt.Printf("catalog invalid: %s\n", rep.Error)
	}
	if !rep.OK {
		os.Exit(1)
	}
}

type snapshotLoader interface {
	LoadSnapshot(ctx context.Context) (*models.CatalogSnapshot, error)
}

func check(ctx context.Context, store snapshotLoader) report {
	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		return report{Error: err.Error()}
	}
	rep := report{
		Statuses:    len(snap.Statuses),
		Transitions: len(snap.Transitions),
		Milestones:  len(snap.Milestones),
		Actions:     len(snap.Actions),
		Impacts:     len(snap.Impacts),
	}
	if _, err := service.BuildCatalog(*snap); err != nil {
		rep.Error = err.Error()
		return rep
	}
	rep.OK = true
	return rep
}
