package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/client"
	"github.com/dharsanguruparan/straymandu/internal/config"
	"github.com/dharsanguruparan/straymandu/internal/model"
)

var (
	apiURL   string
	apiToken string
)

func newClient() (*client.Client, error) {
	base := apiURL
	if base == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		base = cfg.APIURL
	}
	return client.New(base, apiToken, zap.NewNop()), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReports(w io.Writer, reports []*model.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOG\tCONDITION\tSTATUS\tTEAM\tDISTANCE")
	for _, r := range reports {
		dist := "-"
		if r.DistanceKm != nil {
			dist = fmt.Sprintf("%.1f km", *r.DistanceKm)
		}
		team := r.AssignedTeam
		if team == "" {
			team = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.DogName(), r.Condition, r.Status, team, dist)
	}
	return tw.Flush()
}

func newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List and act on reports through the API",
	}
	cmd.AddCommand(newReportsListCmd(), newReportsGetCmd(), newReportsClaimCmd(), newReportsStatusCmd(), newReportsAssignCmd())
	return cmd
}

func newReportsListCmd() *cobra.Command {
	var p client.ListParams
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports, optionally ranked by distance",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			reports, err := c.ListReports(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printReports(cmd.OutOrStdout(), reports)
		},
	}
	cmd.Flags().StringVar(&p.Status, "status", "", "Comma separated statuses")
	cmd.Flags().StringVar(&p.Near, "near", "", "Viewer position as lat,lon")
	cmd.Flags().StringVar(&p.Sort, "sort", "", "recent, distance or urgency")
	cmd.Flags().Float64Var(&p.RadiusKm, "radius", 0, "Only reports within this many km of --near")
	cmd.Flags().BoolVar(&p.Mine, "mine", false, "Only reports I filed or claimed")
	cmd.Flags().BoolVar(&p.Unclaimed, "unclaimed", false, "Only unclaimed reports")
	cmd.Flags().IntVar(&p.Limit, "limit", 0, "Maximum number of reports")
	return cmd
}

func newReportsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get REPORT_ID",
		Short: "Show one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			r, err := c.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}
}

func newReportsClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim REPORT_ID",
		Short: "Claim a pending report for your organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			r, err := c.Claim(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}
}

func newReportsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status REPORT_ID STATUS",
		Short: "Move a claimed report to ongoing, resolved or completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := model.ParseStatus(args[1])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			r, err := c.SetStatus(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}
}

func newReportsAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign REPORT_ID TEAM_ID",
		Short: "Assign one of your teams to a claimed report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			r, err := c.AssignTeam(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}
}

func newNotificationsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List your notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			list, err := c.ListNotifications(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d unread\n", list.Unread)
			for _, n := range list.Items {
				mark := " "
				if !n.IsRead {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s  %s\n", mark, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Desc)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of notifications")
	cmd.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			n, err := c.MarkAllRead(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d marked read\n", n)
			return nil
		},
	})
	return cmd
}

func newLeaderboardCmd() *cobra.Command {
	var period string
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the organization leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			board, err := c.Leaderboard(cmd.Context(), model.LeaderboardPeriod(period), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tORGANIZATION\tRESCUES")
			for i, p := range board {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", i+1, p.DisplayName, p.Score(model.LeaderboardPeriod(period)))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&period, "period", string(model.LeaderboardMonthly), "monthly or total")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of organizations")
	return cmd
}
