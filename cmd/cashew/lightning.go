package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vulpemventures/cashew/internal/core/application"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/pkg/profiler"
)

var (
	maxFee        uint64
	quoteID       string
	watchInterval time.Duration

	invoiceCmd = &cobra.Command{
		Use:   "invoice <mint> <amount>",
		Short: "request an invoice to fund the wallet",
		Long: "this command creates a mint quote and returns the lightning " +
			"invoice to pay to get ecash of the given amount",
		Args: cobra.ExactArgs(2),
		RunE: invoice,
	}
	quoteCheckCmd = &cobra.Command{
		Use:   "check <id>",
		Short: "check the state of a quote",
		Long:  "this command polls the mint for the state of a mint or melt quote",
		Args:  cobra.ExactArgs(1),
		RunE:  quoteCheck,
	}
	quoteRedeemCmd = &cobra.Command{
		Use:   "redeem <id>",
		Short: "redeem a paid mint quote",
		Long:  "this command issues the ecash of a paid mint quote",
		Args:  cobra.ExactArgs(1),
		RunE:  quoteRedeem,
	}
	quoteMeltCmd = &cobra.Command{
		Use:   "melt <mint> <invoice>",
		Short: "quote the payment of an invoice",
		Long: "this command asks the mint the fee reserve required to pay the " +
			"invoice, the returned quote can be paid with 'pay --quote'",
		Args: cobra.ExactArgs(2),
		RunE: quoteMelt,
	}
	quoteCmd = &cobra.Command{
		Use:   "quote",
		Short: "manage mint and melt quotes",
		Long:  "this command lets you check, redeem or create lightning quotes",
	}
	payCmd = &cobra.Command{
		Use:   "pay [<mint> <invoice>]",
		Short: "pay a lightning invoice",
		Long: "this command pays the invoice with the ecash held at the given " +
			"mint, or pays an existing melt quote",
		Args: cobra.RangeArgs(0, 2),
		RunE: pay,
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "track the pending quotes",
		Long: "this command polls the mints for the pending quotes until " +
			"interrupted, paid mint quotes are redeemed automatically",
		RunE: watch,
	}
)

func init() {
	quoteCmd.AddCommand(quoteCheckCmd, quoteRedeemCmd, quoteMeltCmd)

	payCmd.Flags().Uint64Var(&maxFee, "max-fee", 0, "max fee reserve accepted, 0 for no limit")
	payCmd.Flags().StringVar(&quoteID, "quote", "", "id of the melt quote to pay")

	watchCmd.Flags().DurationVar(
		&watchInterval, "interval", quotePollInterval, "polling interval",
	)
}

func invoice(_ *cobra.Command, args []string) error {
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}

	ctx := context.Background()
	_, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	quote, err := wallet.CreateMintQuote(ctx, args[0], amount)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"quote":   quote.ID,
		"invoice": quote.Request,
		"amount":  formatAmount(quote.Amount, quote.Unit),
		"expiry":  time.Unix(quote.Expiry, 0).Format(time.RFC3339),
	})
}

func quoteCheck(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	_, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	mintQuote, err := wallet.CheckMintQuote(ctx, args[0])
	if err == nil {
		return printJSON(map[string]string{
			"quote":  mintQuote.ID,
			"kind":   "mint",
			"state":  mintQuote.State.String(),
			"amount": formatAmount(mintQuote.Amount, mintQuote.Unit),
		})
	}
	if !errors.Is(err, domain.ErrQuoteNotFound) {
		return err
	}

	meltQuote, err := wallet.CheckMeltQuote(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"quote":    meltQuote.ID,
		"kind":     "melt",
		"state":    meltQuote.State.String(),
		"amount":   formatAmount(meltQuote.Amount, meltQuote.Unit),
		"fee_paid": formatAmount(meltQuote.FeePaid, meltQuote.Unit),
		"preimage": meltQuote.Preimage,
	})
}

func quoteRedeem(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	_, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	amount, err := wallet.RedeemMintQuote(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(map[string]uint64{"minted": amount})
}

func quoteMelt(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, _, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	key := domain.WalletKey{MintURL: args[0], Unit: unit}
	quote, err := cfg.QuoteTracker().CreateMeltQuote(ctx, key, args[1])
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"quote":       quote.ID,
		"amount":      formatAmount(quote.Amount, quote.Unit),
		"fee_reserve": formatAmount(quote.FeeReserve, quote.Unit),
		"expiry":      time.Unix(quote.Expiry, 0).Format(time.RFC3339),
	})
}

func pay(_ *cobra.Command, args []string) error {
	if len(quoteID) <= 0 && len(args) != 2 {
		return errors.New("either the mint and the invoice or a quote id are required")
	}

	ctx := context.Background()
	cfg, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var res *application.PaymentResult
	if len(quoteID) > 0 {
		res, err = cfg.QuoteTracker().Melt(ctx, quoteID)
	} else {
		res, err = wallet.PayInvoice(ctx, args[0], args[1], maxFee)
	}
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"quote":    res.QuoteID,
		"state":    res.State.String(),
		"amount":   formatAmount(res.Amount, unit),
		"fee":      formatAmount(res.Fee, unit),
		"change":   formatAmount(res.Change, unit),
		"preimage": res.Preimage,
	})
}

func watch(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	cfg, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !noProfiler {
		svc, err := profiler.NewService(profiler.ServiceOpts{
			Port:          profilerPort,
			StatsInterval: statsInterval,
			Datadir:       profilerDir,
		})
		if err != nil {
			return err
		}
		if err := svc.Start(); err != nil {
			return err
		}
		defer svc.Stop()
	}

	res, err := wallet.CheckPendingProofs(ctx)
	if err != nil {
		return err
	}
	for key, r := range res {
		if r.Spent+r.Restored > 0 {
			log.Infof(
				"wallet %s: %d spent, %d restored, %d still pending",
				key, r.Spent, r.Restored, r.Pending,
			)
		}
	}

	quoteCh, err := cfg.NotificationService().GetQuoteChannel(ctx)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-quoteCh:
				log.Infof(
					"quote %s of wallet %s: %s",
					event.QuoteID, event.WalletKey, event.EventType,
				)
			}
		}
	}()

	log.Infof("watching pending quotes every %s", watchInterval)
	if err := wallet.Watch(ctx, watchInterval); err != nil &&
		!errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown")
	return nil
}
