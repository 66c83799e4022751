package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/internal/appconfig"
	"pkt.systems/tabkeeper/internal/persist"
	"pkt.systems/tabkeeper/internal/recovery"
	"pkt.systems/tabkeeper/internal/sessioncodec"
	"pkt.systems/tabkeeper/schema"
)

func openStore(cfgPath string, logger pslog.Logger) (*persist.Store, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return persist.NewStore(persist.Options{
		Path:             cfg.SessionPath(),
		KeyStore:         cfg.KeyStorePath(),
		DefaultZoomLevel: cfg.Session.DefaultZoomLevel,
		VirtualDesktops:  cfg.Session.VirtualDesktops,
		Logger:           logger,
	})
}

func newInspectCmd(cfgPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the windows and tabs in the session file",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*cfgPath, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			session, err := store.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(recovery.Summarize(session))
			}
			return renderSession(out, session)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the recovery summary as JSON")
	return cmd
}

func renderSession(w io.Writer, session schema.Session) error {
	if !session.IsValid() {
		_, err := fmt.Fprintln(w, "no saved session")
		return err
	}
	var rows [][]string
	for wi, win := range session.Windows {
		for ti, rec := range win.Tabs {
			rows = append(rows, []string{
				strconv.Itoa(wi),
				strconv.Itoa(ti),
				lo.Ternary(ti == win.CurrentTab, "*", ""),
				lo.Ternary(rec.IsPinned, "yes", ""),
				strconv.Itoa(schema.ZoomLevels[schema.ClampZoomLevel(rec.ZoomLevel)]) + "%",
				rec.Title,
				rec.URL,
			})
		}
	}
	table := tablewriter.NewWriter(w)
	table.Header("Window", "Tab", "Current", "Pinned", "Zoom", "Title", "URL")
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d windows, %d tabs (format %#x)\n", len(session.Windows), session.TabCount(), session.Version)
	return err
}

func newMigrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite a legacy session file in the current format",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			store, err := openStore(*cfgPath, logger)
			if err != nil {
				return err
			}
			lock, err := store.Lock()
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()
			migrated, err := store.Migrate()
			if err != nil {
				return err
			}
			if migrated {
				logger.Info("session file migrated", "path", store.Path(), "backup", store.Path()+persist.BackupSuffix)
			} else {
				logger.Info("session file already current", "path", store.Path())
			}
			return nil
		},
	}
}

func newExportCmd(cfgPath *string) *cobra.Command {
	var output string
	var formatVersion int
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the session in a chosen file format version",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			version, err := exportVersion(formatVersion)
			if err != nil {
				return err
			}
			store, err := openStore(*cfgPath, logger)
			if err != nil {
				return err
			}
			session, err := store.Load()
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := sessioncodec.EncodeVersion(&buf, version, session); err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o600); err != nil {
				return err
			}
			logger.Info("session exported", "path", output, "format", version, "windows", len(session.Windows))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&formatVersion, "format-version", 4, "file format version to write (3 or 4)")
	return cmd
}

func exportVersion(v int) (int, error) {
	switch v {
	case 3:
		return sessioncodec.Version3, nil
	case 4:
		return sessioncodec.CurrentVersion, nil
	default:
		return 0, fmt.Errorf("%w: format version %d", schema.ErrUnsupportedVersion, v)
	}
}
