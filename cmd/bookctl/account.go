package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/repository"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage mini-program accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account with a zero paid balance",
	Long: `Create an account. The password is read from --password or, when the
flag is omitted, from the BOOKCTL_PASSWORD environment variable.`,
	RunE: withEnv(runAccountCreate),
}

var accountTopupCmd = &cobra.Command{
	Use:   "topup",
	Short: "Credit payment packages to an account",
	Long: `Credit one or more payment packages to an account. Each package goes
through the same payment path as POST /api/h5/pay and is recorded in the
payment log and the ledger stream.`,
	RunE: withEnv(runAccountTopup),
}

var accountPaymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "List recent payments of an account",
	RunE:  withEnv(runAccountPayments),
}

var (
	accountUsername string
	accountPassword string
	topupPackages   int
	paymentsLimit   int
)

func init() {
	accountCmd.PersistentFlags().StringVarP(&accountUsername, "username", "u", "", "account username")
	_ = accountCmd.MarkPersistentFlagRequired("username")

	accountCreateCmd.Flags().StringVar(&accountPassword, "password", "", "initial password")
	accountTopupCmd.Flags().IntVarP(&topupPackages, "packages", "n", 1, "number of packages to credit")
	accountPaymentsCmd.Flags().IntVar(&paymentsLimit, "limit", 20, "maximum payments to list")

	accountCmd.AddCommand(accountCreateCmd, accountTopupCmd, accountPaymentsCmd)
}

type accountRecord struct {
	ID        string    `yaml:"id"`
	Username  string    `yaml:"username"`
	PaidQuota int       `yaml:"paid_quota"`
	CreatedAt time.Time `yaml:"created_at"`
}

func runAccountCreate(cmd *cobra.Command, e *env, args []string) error {
	password := accountPassword
	if password == "" {
		password = os.Getenv("BOOKCTL_PASSWORD")
	}
	if password == "" {
		return errors.New("a password is required: pass --password or set BOOKCTL_PASSWORD")
	}

	account, err := e.accounts.CreateAccount(cmd.Context(), accountUsername, password)
	if err != nil {
		return err
	}

	rec := accountRecord{
		ID:        account.ID,
		Username:  account.Username,
		PaidQuota: account.PaidQuota,
		CreatedAt: account.CreatedAt,
	}
	return render(cmd, rec, table{
		header: []string{"ID", "USERNAME", "PAID_QUOTA"},
		rows:   [][]string{{rec.ID, rec.Username, strconv.Itoa(rec.PaidQuota)}},
	})
}

type topupRecord struct {
	Username  string `yaml:"username"`
	Packages  int    `yaml:"packages"`
	AmountRMB int    `yaml:"amount_rmb"`
	Added     int    `yaml:"quota_added"`
	Balance   int    `yaml:"balance"`
}

func runAccountTopup(cmd *cobra.Command, e *env, args []string) error {
	if topupPackages <= 0 {
		return fmt.Errorf("--packages must be positive, got %d", topupPackages)
	}

	account, err := lookupAccount(cmd, e, accountUsername)
	if err != nil {
		return err
	}

	pkg := e.accounts.Package()
	var balance int
	for i := 0; i < topupPackages; i++ {
		balance, err = e.accounts.Pay(cmd.Context(), account.ID, pkg.AmountRMB)
		if err != nil {
			return fmt.Errorf("package %d of %d: %w", i+1, topupPackages, err)
		}
	}

	rec := topupRecord{
		Username:  account.Username,
		Packages:  topupPackages,
		AmountRMB: pkg.AmountRMB * topupPackages,
		Added:     pkg.Quota * topupPackages,
		Balance:   balance,
	}
	return render(cmd, rec, table{
		header: []string{"USERNAME", "PACKAGES", "AMOUNT_RMB", "QUOTA_ADDED", "BALANCE"},
		rows: [][]string{{
			rec.Username,
			strconv.Itoa(rec.Packages),
			strconv.Itoa(rec.AmountRMB),
			strconv.Itoa(rec.Added),
			strconv.Itoa(rec.Balance),
		}},
	})
}

type paymentRecord struct {
	ID         string    `yaml:"id"`
	AmountRMB  int       `yaml:"amount_rmb"`
	QuotaAdded int       `yaml:"quota_added"`
	CreatedAt  time.Time `yaml:"created_at"`
}

func runAccountPayments(cmd *cobra.Command, e *env, args []string) error {
	account, err := lookupAccount(cmd, e, accountUsername)
	if err != nil {
		return err
	}

	payments, err := e.repo.ListPayments(cmd.Context(), account.ID, paymentsLimit)
	if err != nil {
		return err
	}

	recs := make([]paymentRecord, 0, len(payments))
	t := table{header: []string{"ID", "AMOUNT_RMB", "QUOTA_ADDED", "CREATED_AT"}}
	for _, p := range payments {
		recs = append(recs, paymentRecord{
			ID:         p.ID,
			AmountRMB:  p.AmountRMB,
			QuotaAdded: p.QuotaAdded,
			CreatedAt:  p.CreatedAt,
		})
		t.rows = append(t.rows, []string{
			p.ID,
			strconv.Itoa(p.AmountRMB),
			strconv.Itoa(p.QuotaAdded),
			p.CreatedAt.Format(time.RFC3339),
		})
	}
	return render(cmd, recs, t)
}

func lookupAccount(cmd *cobra.Command, e *env, username string) (*model.Account, error) {
	account, err := e.repo.GetAccountByUsername(cmd.Context(), username)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, fmt.Errorf("no account named %q", username)
	}
	return account, err
}
