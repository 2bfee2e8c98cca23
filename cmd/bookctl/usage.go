package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's free usage of an identity and an account balance",
	Long: `Show how much of today's free allowance a client identity (its IP
address) has used and, with --username, the paid balance of that account.
"Today" is the calendar day in QUOTA_TIMEZONE.`,
	RunE: withEnv(runUsage),
}

var (
	usageIdentity string
	usageUsername string
)

func init() {
	usageCmd.Flags().StringVar(&usageIdentity, "identity", "", "client identity (IP address)")
	usageCmd.Flags().StringVarP(&usageUsername, "username", "u", "", "account username")
	_ = usageCmd.MarkFlagRequired("identity")
}

type usageRecord struct {
	Day           string `yaml:"day"`
	Identity      string `yaml:"identity"`
	FreeUsed      int    `yaml:"free_used"`
	FreeTotal     int    `yaml:"free_total"`
	FreeRemaining int    `yaml:"free_remaining"`
	Username      string `yaml:"username,omitempty"`
	PaidQuota     int    `yaml:"paid_quota"`
}

func runUsage(cmd *cobra.Command, e *env, args []string) error {
	accountID := ""
	if usageUsername != "" {
		account, err := lookupAccount(cmd, e, usageUsername)
		if err != nil {
			return err
		}
		accountID = account.ID
	}

	usage, err := e.ledger.Usage(cmd.Context(), usageIdentity, accountID)
	if err != nil {
		return err
	}

	rec := usageRecord{
		Day:           usage.Day.Format("2006-01-02"),
		Identity:      usageIdentity,
		FreeUsed:      usage.FreeUsed,
		FreeTotal:     usage.FreeTotal,
		FreeRemaining: usage.FreeRemaining(),
		Username:      usageUsername,
		PaidQuota:     usage.PaidQuota,
	}
	return render(cmd, rec, table{
		header: []string{"DAY", "IDENTITY", "FREE_USED", "FREE_TOTAL", "USERNAME", "PAID_QUOTA"},
		rows: [][]string{{
			rec.Day,
			rec.Identity,
			strconv.Itoa(rec.FreeUsed),
			strconv.Itoa(rec.FreeTotal),
			orDash(rec.Username),
			strconv.Itoa(rec.PaidQuota),
		}},
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
