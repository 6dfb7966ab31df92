package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/davarch/ci-tracker/internal/domain"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-or-pipeline-url>",
	Short: "Fetch a job or pipeline once and print its state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := domain.Classify(args[0])
		if err != nil {
			return err
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		gl := newGateway(cfg)

		var s domain.StatusSnapshot
		if ref.Kind == domain.KindPipeline {
			s, err = gl.FetchPipeline(cmd.Context(), ref)
		} else {
			s, err = gl.FetchJob(cmd.Context(), ref)
		}
		if err != nil {
			return err
		}

		printSnapshot(s)
		return nil
	},
}

var traceCmd = &cobra.Command{
	Use:   "trace <job-url>",
	Short: "Print a job's log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := domain.ClassifyJob(args[0])
		if err != nil {
			return err
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		out, err := newGateway(cfg).FetchJobTrace(cmd.Context(), ref)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(os.Stdout, out)
		return err
	},
}

func printSnapshot(s domain.StatusSnapshot) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	if s.Kind == domain.KindPipeline {
		_, _ = fmt.Fprintf(w, "pipeline\t#%d\n", s.ID)
	} else {
		_, _ = fmt.Fprintf(w, "job\t%s (#%d)\n", s.Name, s.ID)
		_, _ = fmt.Fprintf(w, "stage\t%s\n", s.Stage)
	}
	_, _ = fmt.Fprintf(w, "status\t%s\n", s.Status)
	_, _ = fmt.Fprintf(w, "ref\t%s\n", s.Ref)
	if s.SHA != "" {
		_, _ = fmt.Fprintf(w, "sha\t%s\n", s.SHA)
	}
	if s.Duration > 0 {
		_, _ = fmt.Fprintf(w, "duration\t%s\n", time.Duration(s.Duration*float64(time.Second)).Round(time.Second))
	}
	if s.User != nil {
		_, _ = fmt.Fprintf(w, "user\t%s\n", s.User.Username)
	}
	_, _ = fmt.Fprintf(w, "url\t%s\n", s.WebURL)

	for _, st := range s.Stages {
		_, _ = fmt.Fprintf(w, "\n%s\t\n", st.Name)
		for _, j := range st.Jobs {
			note := ""
			if j.AllowFailure {
				note = " (allowed to fail)"
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s%s\n", j.Name, j.Status, note)
		}
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(traceCmd)
}
