package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/vulpemventures/cashew/internal/core/application"
	"github.com/vulpemventures/cashew/internal/core/domain"
)

var (
	sendUnit string
	memo     string
	offline  bool
	preCheck bool

	balanceCmd = &cobra.Command{
		Use:   "balance",
		Short: "get the balance of the wallet",
		Long: "this command returns the balance held at every mint and the " +
			"total per unit",
		RunE: balance,
	}
	sendCmd = &cobra.Command{
		Use:   "send <mint> <amount>",
		Short: "send ecash",
		Long: "this command returns a token of the given amount, redeemable " +
			"by anyone it is shared with",
		Args: cobra.ExactArgs(2),
		RunE: send,
	}
	receiveCmd = &cobra.Command{
		Use:   "receive <token>",
		Short: "receive ecash",
		Long: "this command redeems the given token, adding its mint to the " +
			"wallet if unknown",
		Args: cobra.ExactArgs(1),
		RunE: receive,
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "list the transactions",
		Long:  "this command returns the transactions of all the wallets",
		RunE:  history,
	}
)

func init() {
	sendCmd.Flags().StringVar(&sendUnit, "unit", "", "unit of the amount, defaults to the configured one")
	sendCmd.Flags().StringVar(&memo, "memo", "", "memo attached to the token")
	sendCmd.Flags().BoolVar(
		&offline, "offline", false,
		"skip the swap at the mint if some proofs match the amount exactly",
	)

	receiveCmd.Flags().BoolVar(
		&preCheck, "precheck", false,
		"check with the mint that the token is unspent before redeeming it",
	)
	receiveCmd.Flags().StringVar(&memo, "memo", "", "memo to record instead of the token one")
}

func balance(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	_, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	balances, err := wallet.GetAllBalances(ctx)
	if err != nil {
		return err
	}

	pending, err := wallet.GetPendingBalances(ctx)
	if err != nil {
		return err
	}

	wallets := make([]map[string]string, 0, len(balances))
	for _, key := range balances.Keys() {
		entry := map[string]string{
			"mint":    key.MintURL,
			"balance": formatAmount(balances[key], key.Unit),
		}
		if amount, ok := pending[key]; ok {
			entry["pending"] = formatAmount(amount, key.Unit)
		}
		wallets = append(wallets, entry)
	}
	total := make(map[string]string)
	for u, amount := range balances.ByUnit() {
		total[u] = formatAmount(amount, u)
	}
	return printJSON(map[string]interface{}{"wallets": wallets, "total": total})
}

func send(_ *cobra.Command, args []string) error {
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

	if sendUnit == "" {
		sendUnit = unit
	}
	key := domain.WalletKey{MintURL: args[0], Unit: sendUnit}
	prepared, err := wallet.PrepareSend(
		ctx, key, amount, application.SendOptions{Offline: offline},
	)
	if err != nil {
		return err
	}
	token, err := wallet.ConfirmSend(ctx, prepared, memo)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"token": token,
		"fee":   formatAmount(prepared.Fee, sendUnit),
	})
}

func receive(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	_, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	token, err := domain.DecodeToken(args[0])
	if err != nil {
		return err
	}
	amount, err := wallet.ReceiveWithOptions(ctx, args[0], application.ReceiveOptions{
		PreCheck: preCheck,
		Memo:     memo,
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"mint":     token.MintURL,
		"received": formatAmount(amount, token.Unit),
	})
}

func history(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	_, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	txs, err := wallet.GetAllTransactions(ctx)
	if err != nil {
		return err
	}
	list := make([]map[string]string, 0, len(txs))
	for _, tx := range txs {
		list = append(list, map[string]string{
			"id":        tx.ID,
			"type":      string(tx.Type),
			"direction": string(tx.Direction),
			"mint":      tx.MintURL,
			"amount":    formatAmount(tx.Amount, tx.Unit),
			"fee":       formatAmount(tx.Fee, tx.Unit),
			"memo":      tx.Memo,
			"date":      time.Unix(0, tx.Timestamp).Format(time.RFC3339),
		})
	}
	return printJSON(list)
}
