package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"license-billing/internal/infra/api"
	"license-billing/internal/usecase"
)

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orderCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect orders",
	}

	var userID string
	wait := &cobra.Command{
		Use:   "wait <order-id>",
		Short: "Poll an order until it is active, failed or the confirmation timeout passes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			res := c.Confirm.Confirm(cmd.Context(), userID, args[0])
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if res.Outcome != usecase.ConfirmSuccess {
				return fmt.Errorf("order %s: %s", args[0], res.Outcome)
			}
			return nil
		},
	}
	wait.Flags().StringVar(&userID, "user", "", "owner of the order")
	_ = wait.MarkFlagRequired("user")

	cmd.AddCommand(wait)
	return cmd
}

func reconcileCmd(g *globalFlags) *cobra.Command {
	var (
		staleAfter time.Duration
		limit      int
		orderID    string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Ask the gateway about pending orders and apply their final status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if orderID != "" {
				applied, err := c.Reconcile.ReconcileOne(cmd.Context(), orderID)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"order_id": orderID, "applied": applied})
			}
			if staleAfter <= 0 {
				staleAfter = c.Cfg.Reconciler.StaleAfter
			}
			if limit <= 0 {
				limit = c.Cfg.Reconciler.BatchSize
			}
			rep, err := c.Reconcile.ReconcileStale(cmd.Context(), staleAfter, limit)
			if perr := printJSON(cmd, rep); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "minimum age of a pending order (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum orders per kind (default from config)")
	cmd.Flags().StringVar(&orderID, "order", "", "reconcile a single order id")
	return cmd
}

func promoCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promo",
		Short: "Manage promo codes",
	}

	var (
		credits int
		expires string
	)
	create := &cobra.Command{
		Use:   "create <code>",
		Short: "Create an active promo code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expiry, err := parseExpiry(expires)
			if err != nil {
				return err
			}
			c, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			p, err := c.Promos.CreatePromoCode(cmd.Context(), args[0], credits, expiry)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"id": p.ID, "code": p.Code, "credits": p.Credits, "expires_at": p.ExpiryDate})
		},
	}
	create.Flags().IntVar(&credits, "credits", 0, "credits granted by the license")
	create.Flags().StringVar(&expires, "expires", "", "expiry as YYYY-MM-DD or RFC 3339")
	_ = create.MarkFlagRequired("credits")

	cmd.AddCommand(create)
	return cmd
}

// parseExpiry accepts an empty string (no expiry), a date, or an RFC 3339 timestamp.
// A bare date expires at the end of that day, UTC.
func parseExpiry(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid --expires %q: use YYYY-MM-DD or RFC 3339", s)
	}
	t := d.Add(24*time.Hour - time.Second)
	return &t, nil
}

func keygenCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print freshly generated license keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			for i := 0; i < n; i++ {
				k, err := usecase.GenerateLicenseKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 1, "number of keys")
	return cmd
}

func tokenCmd(g *globalFlags) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			if !cfg.Runtime.Dev {
				return fmt.Errorf("token minting is only available with --dev")
			}
			tok, err := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Audience).Mint(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
