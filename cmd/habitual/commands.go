package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dukerupert/habitual/internal/backup"
	"github.com/dukerupert/habitual/internal/config"
	"github.com/dukerupert/habitual/internal/database"
	"github.com/dukerupert/habitual/internal/habit"
	"github.com/dukerupert/habitual/internal/heatmap"
	"github.com/dukerupert/habitual/internal/push"
	"github.com/dukerupert/habitual/internal/store"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(env *Env) error {
	db, err := env.OpenDB()
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := db.Version()
	if err != nil {
		return err
	}
	fmt.Printf("Database at version %d\n", v)
	return nil
}

type HeatmapCmd struct {
	Email string `help:"Account email." required:""`
	Habit string `help:"Habit name or ID; all habits when empty."`
}

func (c *HeatmapCmd) Run(env *Env) error {
	db, err := env.OpenDB()
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := store.NewUserStore(db).GetByEmail(c.Email)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("no account for %s", c.Email)
	}

	svc := habit.NewService(store.NewHabitStore(db), store.NewEntryStore(db), env.Logger)
	ctx := context.Background()

	selected := ""
	if c.Habit != "" {
		habits, err := svc.ListHabits(ctx, user.ID)
		if err != nil {
			return err
		}
		for _, h := range habits {
			if h.ID == c.Habit || strings.EqualFold(h.Name, c.Habit) {
				selected = h.ID
				break
			}
		}
		if selected == "" {
			return fmt.Errorf("no habit %q for %s", c.Habit, c.Email)
		}
	}

	hm, err := svc.Heatmap(ctx, user.ID, selected, time.Now())
	if err != nil {
		return err
	}
	fmt.Print(heatmap.Render(hm))
	return nil
}

type VapidKeysCmd struct{}

func (c *VapidKeysCmd) Run(env *Env) error {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Printf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
	return nil
}

type backupFlags struct {
	config.Backup `embed:"" prefix:"backup-"`
}

func (f *backupFlags) manager(env *Env) (*backup.Manager, *database.DB, error) {
	db, err := env.OpenDB()
	if err != nil {
		return nil, nil, err
	}
	mgr := backup.NewManager(backupConfig(f.Backup), db, env.Logger.With("component", "backup"))
	if !mgr.Enabled() {
		db.Close()
		return nil, nil, errors.New("backups need --backup-bucket, S3 credentials and a SQLite database")
	}
	return mgr, db, nil
}

type BackupNowCmd struct {
	backupFlags
}

func (c *BackupNowCmd) Run(env *Env) error {
	mgr, db, err := c.manager(env)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := mgr.RunNow(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded %s (%s)\n", snap.Key, humanize.Bytes(uint64(snap.Size)))
	return nil
}

type BackupListCmd struct {
	backupFlags
}

func (c *BackupListCmd) Run(env *Env) error {
	mgr, db, err := c.manager(env)
	if err != nil {
		return err
	}
	defer db.Close()

	snaps, err := mgr.List(context.Background())
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("No snapshots.")
		return nil
	}
	for _, s := range snaps {
		lock := ""
		if s.Encrypted {
			lock = " (encrypted)"
		}
		fmt.Printf("%s  %8s  %s%s\n", s.Key, humanize.Bytes(uint64(s.Size)), humanize.Time(s.TakenAt), lock)
	}
	return nil
}

type BackupFetchCmd struct {
	backupFlags
	Key string `arg:"" help:"Snapshot key as shown by backup list."`
	Out string `help:"Write the database here." short:"o" default:"habitual-restore.db" type:"path"`
}

func (c *BackupFetchCmd) Run(env *Env) error {
	mgr, db, err := c.manager(env)
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.OpenFile(c.Out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", c.Out, err)
	}
	if err := mgr.Fetch(context.Background(), c.Key, f); err != nil {
		f.Close()
		os.Remove(c.Out)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Wrote %s. Stop the server and replace the database file to restore.\n", c.Out)
	return nil
}
