package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"faceclock/internal/attendance"
	"faceclock/internal/matcher"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the matcher from ENROLL_DIR",
	Long: `Load <ENROLL_DIR>/<personID>/*.jpg|png|webp, run every image through the same
preprocessing used at recognition time and train the configured matcher.
With --register, people missing from the store are created from the
directory names.`,
	RunE: runTrain,
}

var registerPeople bool

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().BoolVar(&registerPeople, "register", false, "Create a person for every enrollment directory not yet in the store")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	det, m, err := a.recognizer(ctx, false)
	if err != nil {
		return err
	}
	corpus, err := matcher.LoadCorpus(ctx, a.cfg.EnrollDir, det, a.log)
	if err != nil {
		return err
	}
	if err := m.Train(ctx, corpus.Faces, corpus.Labels); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	people := corpus.People()
	fmt.Fprintf(cmd.OutOrStdout(), "trained %s matcher on %d faces of %d people\n", a.cfg.MatcherBackend, len(corpus.Faces), len(people))

	if !registerPeople {
		return nil
	}
	created := 0
	for _, id := range people {
		existing, err := a.backend.LookupPerson(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := a.backend.UpsertPerson(ctx, attendance.Person{ID: id, Code: id, DisplayName: id}); err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
		created++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "registered %d new people\n", created)
	return nil
}
