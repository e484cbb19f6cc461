package main

import (
	"context"
	"sort"

	"github.com/spf13/cobra"
)

var (
	backupPublishCmd = &cobra.Command{
		Use:   "publish",
		Short: "publish a backup to the relays",
		Long: "this command publishes the wallet record and a snapshot of the " +
			"ecash held at every mint to the configured nostr relays",
		RunE: backupPublish,
	}
	backupRestoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "restore the wallet from the relays",
		Long: "this command fetches the published records and adds the unspent " +
			"ecash they hold to the wallet",
		RunE: backupRestore,
	}
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "backup the wallet on nostr relays",
		Long:  "this command lets you publish or restore an encrypted backup of the wallet",
	}
)

func init() {
	backupCmd.AddCommand(backupPublishCmd, backupRestoreCmd)
}

func backupPublish(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	backup, err := cfg.BackupService()
	if err != nil {
		return err
	}
	keys, err := wallet.ListMints()
	if err != nil {
		return err
	}

	walletEvent, err := backup.PublishWallet(ctx)
	if err != nil {
		return err
	}
	tokenEvents := make(map[string][]string)
	for _, key := range keys {
		if _, ok := tokenEvents[key.MintURL]; ok {
			continue
		}
		ids, err := backup.PublishTokens(ctx, key.MintURL)
		if err != nil {
			return err
		}
		tokenEvents[key.MintURL] = ids
	}
	pubkey, _ := backup.PublicKey()

	return printJSON(map[string]interface{}{
		"pubkey": pubkey,
		"wallet": walletEvent,
		"tokens": tokenEvents,
	})
}

func backupRestore(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, _, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	backup, err := cfg.BackupService()
	if err != nil {
		return err
	}
	res, err := backup.Restore(ctx)
	if err != nil {
		return err
	}

	restored := make([]map[string]string, 0, len(res.Amounts))
	for key, amount := range res.Amounts {
		restored = append(restored, map[string]string{
			"mint":   key.MintURL,
			"amount": formatAmount(amount, key.Unit),
		})
	}
	sort.Slice(restored, func(i, j int) bool {
		return restored[i]["mint"] < restored[j]["mint"]
	})
	return printJSON(map[string]interface{}{
		"mints":        res.Mints,
		"failed_mints": res.FailedMints,
		"restored":     restored,
		"spent":        res.SpentAmount,
	})
}
