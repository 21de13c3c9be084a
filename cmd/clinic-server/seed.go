package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"github.com/dentalclinic/clinic/internal/domain/scheduling"
)

var seedServices = []string{"Cleaning", "Checkup", "Filling", "Root Canal", "Whitening", "Extraction", "Crown"}

// appointmentSubmitter is the part of the scheduling service seeding uses.
type appointmentSubmitter interface {
	SubmitAppointment(ctx context.Context, req *scheduling.SubmitAppointmentRequest) (*scheduling.SubmitResult, error)
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo practitioners and appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			practitioners, _ := cmd.Flags().GetInt("practitioners")
			appointments, _ := cmd.Flags().GetInt("appointments")
			seed, _ := cmd.Flags().GetUint64("seed")

			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newScheduling(cfg, pool, nil, logger)
			reqs := demoAppointments(gofakeit.New(seed), practitioners, appointments, time.Now())
			n, err := submitAll(ctx, svc, reqs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d appointment(s) across %d practitioner(s).\n", n, practitioners)
			return nil
		},
	}
	cmd.Flags().Int("practitioners", 4, "Number of practitioners to create")
	cmd.Flags().Int("appointments", 50, "Number of appointments to create")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	return cmd
}

// demoAppointments builds n requests spread over the 30 days around now, on
// quarter hours during opening hours, each naming one of the practitioners.
func demoAppointments(f *gofakeit.Faker, practitioners, n int, now time.Time) []*scheduling.SubmitAppointmentRequest {
	if practitioners < 1 {
		practitioners = 1
	}
	names := make([]string, 0, practitioners)
	seen := make(map[string]bool, practitioners)
	for len(names) < practitioners {
		name := fmt.Sprintf("Dr. %s %s", f.FirstName(), f.LastName())
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	start := now.AddDate(0, 0, -15)
	end := now.AddDate(0, 0, 15)
	reqs := make([]*scheduling.SubmitAppointmentRequest, 0, n)
	for i := 0; i < n; i++ {
		reqs = append(reqs, &scheduling.SubmitAppointmentRequest{
			Name:         f.Name(),
			Email:        f.Email(),
			Date:         f.DateRange(start, end).Format(scheduling.DateLayout),
			Time:         fmt.Sprintf("%02d:%02d", f.Number(8, 17), f.RandomInt([]int{0, 15, 30, 45})),
			Service:      f.RandomString(seedServices),
			Practitioner: names[f.Number(0, len(names)-1)],
			Notes:        f.Sentence(6),
		})
	}
	return reqs
}

func submitAll(ctx context.Context, svc appointmentSubmitter, reqs []*scheduling.SubmitAppointmentRequest) (int, error) {
	for i, req := range reqs {
		if _, err := svc.SubmitAppointment(ctx, req); err != nil {
			return i, fmt.Errorf("seed appointment %d: %w", i+1, err)
		}
	}
	return len(reqs), nil
}
