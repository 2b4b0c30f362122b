package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pushcal/internal/ics"
	appLog "pushcal/internal/log"
	"pushcal/internal/model"
	"pushcal/internal/store"
)

func newImportCmd(flags *rootFlags) *cobra.Command {
	var (
		user    string
		addedBy string
		srcURL  string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the events of an iCalendar file or URL as calendar items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" {
				return errors.New("--user is required")
			}
			if (srcURL == "") == (file == "") {
				return errors.New("exactly one of --url and --file is required")
			}
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}

			var body []byte
			if file != "" {
				body, err = os.ReadFile(file)
			} else {
				var res ics.FetchResult
				res, err = ics.NewFetcher(conf.Calendar.ImportCacheDir, conf.Push.Timeout).Fetch(cmd.Context(), srcURL)
				body = res.Body
			}
			if err != nil {
				return err
			}

			parsed, err := ics.ParseImport(body, ics.ImportTarget{
				UserID:  model.SubjectID(user),
				AddedBy: model.SubjectID(addedBy),
			})
			if err != nil {
				return err
			}

			db, err := store.Open(conf.Store.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			items := store.NewCalendarStore(db)

			for _, item := range parsed.Items {
				if _, err := items.Add(cmd.Context(), item); err != nil {
					return err
				}
			}
			appLog.Info("calendar import finished", "user_id", user, "imported", len(parsed.Items), "skipped", len(parsed.Skipped))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", len(parsed.Items), len(parsed.Skipped))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Subject the events are for")
	cmd.Flags().StringVar(&addedBy, "added-by", "", "Creator recorded on the items (defaults to --user)")
	cmd.Flags().StringVar(&srcURL, "url", "", "Remote calendar URL")
	cmd.Flags().StringVar(&file, "file", "", "Local .ics file")
	return cmd
}
