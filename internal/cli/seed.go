package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/reporting"
)

// Fixture is a YAML document of records to load. Reporters, patients and
// diseases carry their ids; reports are numbered by the store.
type Fixture struct {
	Reporters []ReporterFixture   `yaml:"reporters"`
	Patients  []PatientFixture    `yaml:"patients"`
	Diseases  []DiseaseFixture    `yaml:"diseases"`
	Reports   []model.ReportPatch `yaml:"reports"`
}

type ReporterFixture struct {
	ID                  int64 `yaml:"id"`
	model.ReporterPatch `yaml:",inline"`
}

type PatientFixture struct {
	ID                 int64 `yaml:"id"`
	model.PatientPatch `yaml:",inline"`
}

type DiseaseFixture struct {
	ID                 int64 `yaml:"id"`
	model.DiseasePatch `yaml:",inline"`
}

// LoadFixture decodes a fixture, rejecting unknown keys.
func LoadFixture(data []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &f, nil
}

// SeedResult counts what a fixture wrote.
type SeedResult struct {
	Reporters, Patients, Diseases, Reports int
}

// Apply writes the fixture through the reporting service as principal, in
// dependency order. It stops at the first failure.
func (f *Fixture) Apply(ctx context.Context, reports reporting.Service, principal model.Principal) (SeedResult, error) {
	var res SeedResult
	for _, r := range f.Reporters {
		if _, err := reports.UpsertReporter(ctx, principal, r.ID, r.ReporterPatch); err != nil {
			return res, fmt.Errorf("reporter %d: %w", r.ID, err)
		}
		res.Reporters++
	}
	for _, p := range f.Patients {
		if _, err := reports.UpsertPatient(ctx, principal, p.ID, p.PatientPatch); err != nil {
			return res, fmt.Errorf("patient %d: %w", p.ID, err)
		}
		res.Patients++
	}
	for _, d := range f.Diseases {
		if _, err := reports.UpsertDisease(ctx, principal, d.ID, d.DiseasePatch); err != nil {
			return res, fmt.Errorf("disease %d: %w", d.ID, err)
		}
		res.Diseases++
	}
	for i, r := range f.Reports {
		if _, err := reports.CreateReport(ctx, principal, r); err != nil {
			return res, fmt.Errorf("report #%d: %w", i+1, err)
		}
		res.Reports++
	}
	return res, nil
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var reporterID int64

	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load reporters, patients, diseases and reports from a YAML fixture",
		Long: `Load a YAML fixture through the same validation the API applies.

Pending migrations are applied first. Records are written as the reporter
given by --as, which must exist once the fixture's reporters are loaded.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			fixture, err := LoadFixture(data)
			if err != nil {
				return err
			}

			a, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if _, err := a.DB.Migrate(cmd.Context()); err != nil {
				return err
			}
			res, err := fixture.Apply(cmd.Context(), a.Reports, model.Principal{ID: reporterID, Username: "outbreakctl"})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d reporter(s), %d patient(s), %d disease(s), %d report(s)\n",
				res.Reporters, res.Patients, res.Diseases, res.Reports)
			return nil
		},
	}
	cmd.Flags().Int64Var(&reporterID, "as", 1, "reporter id that owns seeded diseases and reports")

	return cmd
}
