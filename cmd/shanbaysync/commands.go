package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/japaniel/shanbaysync/pkg/anki"
	"github.com/japaniel/shanbaysync/pkg/db"
	"github.com/japaniel/shanbaysync/pkg/download"
	"github.com/japaniel/shanbaysync/pkg/export"
	"github.com/japaniel/shanbaysync/pkg/ingest"
	"github.com/japaniel/shanbaysync/pkg/shanbay"
)

func newLoginCmd(a *app) *cobra.Command {
	var header string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Validate and store the session cookie",
		Long: "Sign in at " + shanbay.LoginURL + " with a browser, copy the Cookie\n" +
			"request header and pass it with --cookie. The cookie is validated and saved\n" +
			"to the config file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cookies := shanbay.ParseCookieHeader(header)
			if !shanbay.IsLoginCookie(cookies, "") {
				return fmt.Errorf("cookie has no %s, sign in at %s first", shanbay.AuthCookie, shanbay.LoginURL)
			}
			client, err := a.newClient(a.httpClient())
			if err != nil {
				return err
			}
			ok, err := client.CheckCookie(cmd.Context(), cookies)
			if err != nil {
				return err
			}
			if !ok {
				return ingest.ErrInvalidCookie
			}
			if err := a.settings.SetCookies(cookies); err != nil {
				return err
			}
			if err := a.settings.Save(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Login saved to %s\n", a.settings.File)
			return nil
		},
	}
	cmd.Flags().StringVar(&header, "cookie", "", "Cookie header copied from a signed-in browser")
	_ = cmd.MarkFlagRequired("cookie")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	var noExamples, noTranslate bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch new words and backfill examples and translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cookies, err := a.settings.Cookies()
			if err != nil {
				return err
			}
			if len(cookies) == 0 {
				return errors.New("no saved cookie, run `shanbaysync login` first")
			}
			client, err := a.newClient(a.httpClient())
			if err != nil {
				return err
			}
			conn, err := db.Open(a.settings.Database)
			if err != nil {
				return err
			}
			defer conn.Close()

			syncer := ingest.NewSyncer(client, conn, a.log)
			syncer.Examples = a.settings.Example && !noExamples
			syncer.Translate = a.settings.Translate && !noTranslate
			syncer.OnProgress = func(stage ingest.Stage, current, total int) {
				fmt.Fprintf(a.errOut, "\r%s %d/%d", stage, current, total)
			}
			syncer.OnStageDone = func(stage ingest.Stage, s ingest.Summary) {
				fmt.Fprintf(a.errOut, "\n")
				fmt.Fprintf(a.out, "%s: %d done, %d skipped, %d failed of %d\n",
					stage, s.Done, s.Skipped, s.Failed, s.Total)
			}

			if _, err := syncer.Run(cmd.Context(), cookies); err != nil {
				if errors.Is(err, ingest.ErrInvalidCookie) || errors.Is(err, shanbay.ErrUnauthorized) {
					return fmt.Errorf("%w: run `shanbaysync login` again", err)
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noExamples, "no-examples", false, "skip the example sentence backfill")
	cmd.Flags().BoolVar(&noTranslate, "no-translate", false, "skip the source translation backfill")
	return cmd
}

func newGroupsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List cached source groups, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			conn, err := db.Open(a.settings.Database)
			if err != nil {
				return err
			}
			defer conn.Close()

			groups, err := db.ListSourceGroups(conn)
			if err != nil {
				return err
			}
			for _, g := range groups {
				fmt.Fprintln(a.out, g)
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var (
		all      bool
		deck     string
		noteType string
		noAudio  bool
	)
	cmd := &cobra.Command{
		Use:   "export [group...]",
		Short: "Write notes for the selected source groups and download their audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("deck") {
				deck = a.settings.Deck
			}
			if !cmd.Flags().Changed("note-type") {
				noteType = a.settings.NoteType
			}
			opts, err := a.settings.ExportOptions()
			if err != nil {
				return err
			}

			conn, err := db.Open(a.settings.Database)
			if err != nil {
				return err
			}
			defer conn.Close()

			groups := args
			if all {
				if groups, err = db.ListSourceGroups(conn); err != nil {
					return err
				}
			}
			if len(groups) == 0 {
				return errors.New("no groups selected, pass group names or --all")
			}

			res, err := export.Project(ctx, conn, groups, opts)
			if err != nil {
				return err
			}
			coll, err := anki.OpenTSVCollection(a.settings.OutputDir, a.log)
			if err != nil {
				return err
			}
			n, err := export.AddNotes(ctx, coll, deck, noteType, res.Records)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Exported %d notes from %s to %s\n",
				n, strings.Join(groups, ", "), coll.FilePath(deck, noteType))

			if noAudio || len(res.Downloads) == 0 {
				return nil
			}
			dl := download.NewDownloader(a.httpClient(), a.settings.MediaDir, a.log)
			dl.Workers = a.settings.Download.Workers
			stats, err := dl.Run(ctx, res.Downloads)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Audio: %d downloaded, %d skipped, %d failed\n",
				stats.Downloaded, stats.Skipped, stats.Failed)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&all, "all", false, "export every cached group")
	f.StringVar(&deck, "deck", "", "target deck (default from config)")
	f.StringVar(&noteType, "note-type", "", "note type name (default from config)")
	f.BoolVar(&noAudio, "no-audio", false, "skip audio downloads")
	return cmd
}
