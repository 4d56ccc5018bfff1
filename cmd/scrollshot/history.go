package main

import (
	"fmt"
	"io"
	"os"

	"jordanella.com/scroll-stitch/internal/database"
	"jordanella.com/scroll-stitch/internal/logging"
)

// maintainHistory deletes, compacts and then prints the capture history, in
// that order, skipping the steps that were not asked for
func maintainHistory(path string, limit int, deleteID string, vacuum bool, logger *logging.Logger) error {
	db, err := openHistory(path, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if deleteID != "" {
		if err := db.DeleteSession(deleteID); err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("Deleted session %s", deleteID))
	}

	if vacuum {
		if err := db.Vacuum(); err != nil {
			return fmt.Errorf("failed to vacuum: %w", err)
		}
		logger.Info(fmt.Sprintf("Compacted %s", db.Path()))
	}

	if limit > 0 {
		return printHistory(os.Stdout, db, limit)
	}
	return nil
}

func printHistory(w io.Writer, db *database.DB, limit int) error {
	version, err := db.GetVersion()
	if err != nil {
		return err
	}
	stats, err := db.GetStats()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (schema v%d): %d sessions, %d errors\n",
		db.Path(), version, stats["capture_sessions"], stats["session_errors"])

	sessions, err := db.ListSessions(limit)
	if err != nil {
		return err
	}

	for _, s := range sessions {
		out := "-"
		if s.OutputPath != nil {
			out = *s.OutputPath
		}
		fmt.Fprintf(w, "%s  %s  %-10s %5dx%-6d frames=%-4d %-16s %s\n",
			s.StartedAt.Local().Format("2006-01-02 15:04:05"), shortID(s.ID), s.Direction,
			s.Width, s.Height, s.FrameCount, s.Reason, out)

		errs, err := db.GetSessionErrors(s.ID)
		if err != nil {
			return err
		}
		for _, e := range errs {
			kind := "warn "
			if e.IsFatal {
				kind = "fatal"
			}
			fmt.Fprintf(w, "    %s %s %s\n", kind, e.OccurredAt.Local().Format("15:04:05"), e.ErrorMessage)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
