package main

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	units []string

	mintAddCmd = &cobra.Command{
		Use:   "add <url>",
		Short: "add a mint",
		Long: "this command lets you add a mint to the wallet, for the given " +
			"units or for the default one",
		Args: cobra.ExactArgs(1),
		RunE: mintAdd,
	}
	mintRemoveCmd = &cobra.Command{
		Use:   "remove <url>",
		Short: "remove a mint",
		Long: "this command lets you remove a mint from the wallet, along with " +
			"all the ecash held at that mint",
		Args: cobra.ExactArgs(1),
		RunE: mintRemove,
	}
	mintListCmd = &cobra.Command{
		Use:   "list",
		Short: "list the mints",
		Long:  "this command returns the mint url and unit of every wallet",
		RunE:  mintList,
	}
	mintCmd = &cobra.Command{
		Use:   "mint",
		Short: "manage the mints of the wallet",
		Long:  "this command lets you add, remove or list the trusted mints",
	}
)

func init() {
	mintAddCmd.Flags().StringSliceVar(&units, "unit", nil, "units to hold at the mint")
	mintCmd.AddCommand(mintAddCmd, mintRemoveCmd, mintListCmd)
}

func mintAdd(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	_, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	record, err := wallet.AddMint(ctx, args[0], units...)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"url":   record.URL,
		"name":  record.Info.Name,
		"units": record.Units,
	})
}

func mintRemove(_ *cobra.Command, args []string) error {
	ctx := context.Background()
	_, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := wallet.RemoveMint(ctx, args[0]); err != nil {
		return err
	}
	return printJSON(map[string]string{"status": "mint removed"})
}

func mintList(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	_, wallet, cleanup, err := getWallet(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	keys, err := wallet.ListMints()
	if err != nil {
		return err
	}
	list := make([]map[string]string, 0, len(keys))
	for _, key := range keys {
		list = append(list, map[string]string{"url": key.MintURL, "unit": key.Unit})
	}
	return printJSON(list)
}
