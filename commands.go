package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"syscall"
	"time"
	"yappy/entity"
	"yappy/internal"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the payment HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			refreshOnBoot(ctx, a)

			server := internal.NewServer(a.conf)
			server.SetLogger(internal.NewLogger("server", a.conf.IsDebug, a.database))
			server.SetPaymentsService(a.payments)
			server.SetCredentials(a.credentials)
			server.SetConfigRefresher(a.remote)

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("server shutdown", err)
				}
			}()

			if err = server.Start(); err != nil {
				a.logger.Error("server start", err)
				return err
			}
			return nil
		},
	}
}

func newPayCommand() *cobra.Command {
	var request entity.PaymentRequest

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Run one QR payment in the terminal, Ctrl-C cancels it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			refreshOnBoot(ctx, a)
			credentials, err := a.credentials.Resolve(ctx)
			if err != nil {
				return err
			}

			logger := internal.NewLogger("payments", a.conf.IsDebug, a.database)
			flow := internal.NewFlow(internal.NewYappyClient(a.conf.Http.Timeout, logger), credentials, internal.RetryPolicy{
				Interval:    a.conf.Poll.Interval,
				MaxAttempts: a.conf.Poll.MaxAttempts,
			}, logger)
			flow.SetSessionTokens(a.credentials)

			go func() {
				<-ctx.Done()
				cancelCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = flow.Cancel(cancelCtx)
			}()

			done := make(chan struct{})
			go func() {
				defer close(done)
				encoder := json.NewEncoder(cmd.OutOrStdout())
				for event := range flow.Events() {
					_ = encoder.Encode(event)
				}
			}()

			result, err := flow.Run(context.WithoutCancel(ctx), request)
			<-done
			if err != nil {
				return err
			}
			if result.Outcome != entity.OutcomeSuccess {
				return fmt.Errorf("payment %s: %s", result.OrderId, result.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&request.Amount, "amount", 0, "subtotal amount")
	cmd.Flags().Float64Var(&request.Tax, "tax", 0, "tax amount")
	cmd.Flags().Float64Var(&request.Tip, "tip", 0, "tip amount")
	cmd.Flags().Float64Var(&request.Discount, "discount", 0, "discount amount")
	cmd.Flags().Float64Var(&request.Total, "total", 0, "total, computed when omitted")
	cmd.Flags().StringVar(&request.OrderId, "order", "", "order id, generated when omitted")
	cmd.Flags().StringVar(&request.Description, "description", "", "payment description")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Provider configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Fetch the remote configuration and store the credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			credentials, err := a.remote.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "device %s, group %s, endpoint %s\n",
				credentials.DeviceId, credentials.GroupId, credentials.BaseUrl)
			return nil
		},
	})
	return cmd
}
